package services

import (
	"encoding/json"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"gorm.io/datatypes"
)

// actorPayload is the display data stored with notifications caused by a user.
func actorPayload(actor *models.Actor, extra map[string]interface{}) datatypes.JSON {
	data := map[string]interface{}{
		"fromUserId":       actor.ID,
		"fromUserName":     actor.Name,
		"fromUserUsername": actor.Username,
	}
	for k, v := range extra {
		data[k] = v
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
