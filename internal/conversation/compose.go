package conversation

import "chat-relay/internal/models"

// Compose builds the upstream prompt: prior turns in order, then the new message.
func Compose(req models.ConversationRequest, systemInstruction string) models.UpstreamPayload {
	contents := make([]models.Content, 0, len(req.History)+1)
	for _, item := range req.History {
		role := models.UpstreamRoleUser
		if item.Role == models.RoleAssistant {
			role = models.UpstreamRoleModel
		}
		contents = append(contents, models.Content{Role: role, Text: item.Content})
	}
	contents = append(contents, models.Content{Role: models.UpstreamRoleUser, Text: req.Message})

	return models.UpstreamPayload{
		SystemInstruction: systemInstruction,
		Contents:          contents,
	}
}
