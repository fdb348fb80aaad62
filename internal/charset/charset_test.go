package charset

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ctxdict/pkg/contract"
)

func TestLookupUTF8(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", " utf-8 ", "unicode-1-1-utf-8"} {
		cs, err := Lookup(name)
		require.NoError(t, err, name)
		require.True(t, cs.IsUTF8(), name)
		require.Equal(t, "utf-8", cs.Name())
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("no-such-charset")
	require.True(t, errors.Is(err, contract.ErrInvalidInput))
}

// 非 UTF-8：宽度按原编码计算
func TestWidthLatin1(t *testing.T) {
	cs, err := Lookup("latin1")
	require.NoError(t, err)
	require.False(t, cs.IsUTF8())
	require.Equal(t, 1, cs.Width('é', 2))
	require.Equal(t, 1, cs.Width('a', 1))
	// 非法字节按 1 计
	require.Equal(t, 1, cs.Width(0xFFFD, 1))
	// 再次查询走缓存
	require.Equal(t, 1, cs.Width('é', 2))
}

func TestWidthUTF8(t *testing.T) {
	require.Equal(t, 2, UTF8.Width('é', 2))
	require.Equal(t, 3, UTF8.Width('中', 3))
	require.Equal(t, 1, UTF8.Width(0xFFFD, 1))
}

func TestReaderWriterRoundTrip(t *testing.T) {
	cs, err := Lookup("iso-8859-1")
	require.NoError(t, err)
	var buf bytes.Buffer
	w := cs.NewWriter(&buf)
	_, err = io.WriteString(w, "café\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, []byte("caf\xe9\n"), buf.Bytes())

	got, err := io.ReadAll(cs.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, "café\n", string(got))

	// UTF-8 原样透传（含非法字节）
	raw := "ab\xffc"
	got, err = io.ReadAll(UTF8.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, raw, string(got))
}

func TestDecode(t *testing.T) {
	cs, err := Lookup("latin1")
	require.NoError(t, err)
	require.Equal(t, "café noir", cs.Decode([]byte("caf\xe9 noir")))
	require.Equal(t, "a\xffb", UTF8.Decode([]byte("a\xffb")))
	require.Equal(t, "", cs.Decode(nil))
}
