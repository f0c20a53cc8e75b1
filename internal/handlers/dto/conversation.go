package dto

type CreateConversationRequest struct {
	RecipientID   string `json:"recipient_id" binding:"required,uuid"`
	RecipientRole string `json:"recipient_role" binding:"required"`
	SubjectID     string `json:"subject_id" binding:"required,uuid"`
}

type CreateTeamChatRequest struct {
	MemberIDs []string `json:"member_ids" binding:"required,min=1,dive,uuid"`
	SubjectID string   `json:"subject_id" binding:"required,uuid"`
}

type ListConversationsQuery struct {
	Limit int `form:"limit"`
}
