package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolder(t *testing.T) {
	for _, s := range []string{"inbox", "sent", "draft"} {
		f, err := ParseFolder(s)
		require.NoError(t, err)
		_, err = f.table()
		assert.NoError(t, err)
	}
	_, err := ParseFolder("spam")
	assert.Error(t, err)

	_, err = ParseEmailFolder("draft")
	assert.Error(t, err)
	f, err := ParseEmailFolder("sent")
	require.NoError(t, err)
	assert.Equal(t, FolderSent, f)
}

func TestAttachmentInfoList_Value(t *testing.T) {
	v, err := AttachmentInfoList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = AttachmentInfoList{{Name: "a.pdf", Size: 12}}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a.pdf","size":12}]`, v.(string))
}

func TestAttachmentInfoList_Scan(t *testing.T) {
	var l AttachmentInfoList
	require.NoError(t, l.Scan([]byte(`[{"name":"a.pdf","size":12}]`)))
	assert.Equal(t, AttachmentInfoList{{Name: "a.pdf", Size: 12}}, l)

	var empty AttachmentInfoList
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)

	assert.Error(t, l.Scan(42))
}

func TestStoredAttachments_Content(t *testing.T) {
	in := StoredAttachments{{Filename: "r.bin", MimeType: "application/octet-stream", Content: []byte{0, 1, 2, 255}}}
	v, err := in.Value()
	require.NoError(t, err)
	assert.Contains(t, v.(string), `"content":"AAEC/w=="`)

	var out StoredAttachments
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)
}

func TestSettings_Labels(t *testing.T) {
	st := DefaultSettings(7)
	assert.Equal(t, 50, st.MaxPageSize)
	assert.Len(t, st.Labels(), len(LabelColumns))

	assert.True(t, st.SetLabel(LabelSpam, "hide"))
	assert.Equal(t, "hide", st.Labels()[LabelSpam])
	assert.False(t, st.SetLabel("label_bogus_visibility", "hide"))
}
