package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/dkeye/RoomRelay/internal/domain"
)

// OpenConnection inserts the connection and returns its durable id.
func (s *Store) OpenConnection(ctx context.Context, rec domain.ConnectionRecord) (int64, error) {
	row := Connection{
		DeviceID:    string(rec.DeviceID),
		RoomID:      string(rec.RoomID),
		Identity:    rec.Identity,
		ConnectedAt: s.now(),
		ClientIP:    rec.ClientIP,
	}
	err := s.withConn(ctx, "open connection", func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Store) CloseConnection(ctx context.Context, id int64) error {
	return s.withConn(ctx, "close connection", func(tx *gorm.DB) error {
		return tx.Model(&Connection{}).Where("id = ?", id).Update("disconnected_at", s.now()).Error
	})
}

func (s *Store) LogMessage(ctx context.Context, rec domain.MessageRecord) error {
	row := Message{
		FromDeviceID:   string(rec.From),
		RoomID:         string(rec.RoomID),
		MessageContent: rec.Content,
		MessageType:    string(rec.Kind),
		SentAt:         s.now(),
	}
	if rec.To != "" {
		to := string(rec.To)
		row.ToDeviceID = &to
	}
	return s.withConn(ctx, "log message", func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

func (s *Store) LogRoomQuery(ctx context.Context, device domain.DeviceID, room domain.RoomID) error {
	return s.withConn(ctx, "log room query", func(tx *gorm.DB) error {
		return tx.Create(&RoomQuery{
			DeviceID:  string(device),
			RoomID:    string(room),
			QueriedAt: s.now(),
		}).Error
	})
}
