package event

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreatedTopic = "organization.created"
	OrganizationUpdatedTopic = "organization.updated"
	OrganizationDeletedTopic = "organization.deleted"
	MemberAddedTopic         = "organization.member_added"
	MemberRemovedTopic       = "organization.member_removed"
)

// EventPublisher appends events to the outbox. Passing the mutating
// transaction makes the event commit or roll back with the change.
type EventPublisher interface {
	Publish(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload []byte) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node) EventPublisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
	}
}

func (p *outboxPublisher) Publish(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload []byte) error {
	if orgID == 0 {
		return errors.New("missing organization_id")
	}
	conn := tx
	if conn == nil {
		conn = p.db
	}

	return conn.WithContext(ctx).Exec(
		`INSERT INTO organization_events (id, org_id, event_type, payload, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		p.genID.Generate(),
		orgID,
		topic,
		datatypes.JSON(payload),
		time.Now().UTC(),
	).Error
}
