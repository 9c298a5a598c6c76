package model

import (
	"time"

	"github.com/google/uuid"
)

// Resource is a venue events can be attached to.
type Resource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Timezone  *string   `json:"timezone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
