package api

import (
	"database/sql"

	"webmail/database"
)

func NewEmailRow(e database.Email) EmailRow {
	recipients := []string(e.Recipients)
	if recipients == nil {
		recipients = []string{}
	}
	return EmailRow{
		ID:         e.ID,
		UserID:     e.UserID,
		Sender:     e.Sender,
		Recipients: recipients,
		Subject:    e.Subject,
		PlainBody:  e.PlainBody,
		BodyHTML:   e.BodyHTML,
		Category:   e.Category,
		ReceivedAt: e.ReceivedAt,
		IsStarred:  e.IsStarred,
		IsTrashed:  e.IsTrashed,
	}
}

func NewEmailRows(in []database.Email) []EmailRow {
	out := make([]EmailRow, 0, len(in))
	for _, e := range in {
		out = append(out, NewEmailRow(e))
	}
	return out
}

func newAttachmentInfos(in database.AttachmentInfoList) []AttachmentInfo {
	out := make([]AttachmentInfo, 0, len(in))
	for _, a := range in {
		out = append(out, AttachmentInfo{Name: a.Name, Size: a.Size})
	}
	return out
}

// AttachmentInfoList converts request metadata back to its stored form.
func AttachmentInfoList(in []AttachmentInfo) database.AttachmentInfoList {
	out := make(database.AttachmentInfoList, 0, len(in))
	for _, a := range in {
		out = append(out, database.AttachmentInfo{Name: a.Name, Size: a.Size})
	}
	return out
}

func NewDraftRows(in []database.Draft) []DraftRow {
	out := make([]DraftRow, 0, len(in))
	for _, d := range in {
		out = append(out, DraftRow{
			ID:              d.ID,
			UserID:          d.UserID,
			RecipientEmail:  d.RecipientEmail,
			Subject:         d.Subject,
			BodyHTML:        d.BodyHTML,
			AttachmentsInfo: newAttachmentInfos(d.AttachmentsInfo),
			LastSavedAt:     d.LastSavedAt,
			IsStarred:       d.IsStarred,
			IsTrashed:       d.IsTrashed,
		})
	}
	return out
}

func NewFolderItems(in []database.FolderItem) []FolderItem {
	out := make([]FolderItem, 0, len(in))
	for _, it := range in {
		t := it.ItemTime
		item := FolderItem{
			Type:      string(it.Folder),
			ID:        it.ID,
			Subject:   it.Subject,
			BodyHTML:  it.BodyHTML,
			IsStarred: it.IsStarred,
			IsTrashed: it.IsTrashed,
		}
		if it.Folder == database.FolderDraft {
			item.RecipientEmail = it.RecipientEmail
			item.AttachmentsInfo = newAttachmentInfos(it.AttachmentsInfo)
			item.LastSavedAt = &t
		} else {
			item.Folder = string(it.Folder)
			item.Sender = it.Sender
			item.Recipients = []string(it.Recipients)
			item.PlainBody = it.PlainBody
			item.ReceivedAt = &t
		}
		out = append(out, item)
	}
	return out
}

func NewScheduledRow(s database.ScheduledEmail) ScheduledRow {
	atts := make([]AttachmentInfo, 0, len(s.Attachments))
	for _, a := range s.Attachments {
		atts = append(atts, AttachmentInfo{Name: a.Filename, Size: int64(len(a.Content))})
	}
	return ScheduledRow{
		ID:          s.ID,
		Recipients:  []string(s.Recipients),
		Subject:     s.Subject,
		BodyHTML:    s.BodyHTML,
		Attachments: atts,
		ScheduledAt: s.ScheduledAt,
		Status:      s.Status,
		LastError:   s.LastError,
	}
}

func NewScheduledRows(in []database.ScheduledEmail) []ScheduledRow {
	out := make([]ScheduledRow, 0, len(in))
	for _, s := range in {
		out = append(out, NewScheduledRow(s))
	}
	return out
}

func NewSignature(s database.Signature) Signature {
	return Signature{ID: s.ID, Name: s.Name, Content: s.Content, CreatedAt: s.CreatedAt}
}

func NewSignatures(in []database.Signature) []Signature {
	out := make([]Signature, 0, len(in))
	for _, s := range in {
		out = append(out, NewSignature(s))
	}
	return out
}

func nullableID(n sql.NullInt64) NullableID {
	return NullableID{Set: true, Valid: n.Valid, Value: n.Int64}
}

func NewSettings(st *database.Settings, sigs []database.Signature) *Settings {
	return &Settings{
		MaxPageSize:              st.MaxPageSize,
		UndoSendDelay:            st.UndoSendDelay,
		ProfilePictureURL:        st.ProfilePictureURL,
		DefaultSignatureNew:      nullableID(st.DefaultSignatureNew),
		DefaultSignatureReply:    nullableID(st.DefaultSignatureReply),
		LabelStarredVisibility:   st.LabelStarred,
		LabelSentVisibility:      st.LabelSent,
		LabelDraftsVisibility:    st.LabelDrafts,
		LabelScheduledVisibility: st.LabelScheduled,
		LabelSpamVisibility:      st.LabelSpam,
		LabelTrashVisibility:     st.LabelTrash,
		Signatures:               NewSignatures(sigs),
	}
}

// Patch converts the request into the store's partial update.
func (p SettingsPatch) Patch() database.SettingsPatch {
	out := database.SettingsPatch{
		MaxPageSize:   p.MaxPageSize,
		UndoSendDelay: p.UndoSendDelay,
		Labels:        map[string]string{},
	}
	if p.DefaultSignatureNew.Set {
		out.DefaultSignatureNew = &sql.NullInt64{Int64: p.DefaultSignatureNew.Value, Valid: p.DefaultSignatureNew.Valid}
	}
	if p.DefaultSignatureReply.Set {
		out.DefaultSignatureReply = &sql.NullInt64{Int64: p.DefaultSignatureReply.Value, Valid: p.DefaultSignatureReply.Valid}
	}
	for col, v := range map[string]*string{
		database.LabelStarred:   p.LabelStarredVisibility,
		database.LabelSent:      p.LabelSentVisibility,
		database.LabelDrafts:    p.LabelDraftsVisibility,
		database.LabelScheduled: p.LabelScheduledVisibility,
		database.LabelSpam:      p.LabelSpamVisibility,
		database.LabelTrash:     p.LabelTrashVisibility,
	} {
		if v != nil {
			out.Labels[col] = *v
		}
	}
	return out
}
