package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store, used for
// development and tests. Set fields are serialized as JSON columns and set
// semantics are enforced read-modify-write inside transactions.
type Store struct {
	db *gorm.DB
}

type userModel struct {
	ID          string `gorm:"primaryKey"`
	Username    string `gorm:"uniqueIndex"`
	Password    string
	DisplayName string
	Role        string
	Friends     []string `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type messageModel struct {
	ID             string `gorm:"primaryKey"`
	SenderID       string `gorm:"index"`
	ReceiverID     string `gorm:"index"`
	GroupID        string `gorm:"index"`
	Text           string
	MediaURL       string
	MediaDeleteKey string
	MediaType      string
	DeliveredTo    []string `gorm:"serializer:json"`
	ReadBy         []string `gorm:"serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type groupModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Members   []string `gorm:"serializer:json"`
	AdminID   string
	Community bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type statusModel struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"index"`
	MediaURL       string
	MediaDeleteKey string
	AudioURL       string
	AudioDeleteKey string
	MediaType      string
	CreatedAt      time.Time
	ExpiresAt      time.Time `gorm:"index"`
}

type postModel struct {
	ID         string             `gorm:"primaryKey"`
	OwnerID    string             `gorm:"index"`
	Items      []storage.PostItem `gorm:"serializer:json"`
	Visibility string
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&userModel{}, &messageModel{}, &groupModel{}, &statusModel{}, &postModel{},
	)
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	model := userModel(*user)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	user := storage.User(model)
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		return nil, mapErr(err)
	}
	user := storage.User(model)
	return &user, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]storage.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []userModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]storage.User, 0, len(models))
	for _, m := range models {
		users = append(users, storage.User(m))
	}
	return users, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	model := messageModel(*msg)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) GetMessage(ctx context.Context, id string) (*storage.Message, error) {
	var model messageModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	msg := storage.Message(model)
	return &msg, nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id, text string) error {
	result := s.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{"text": text, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&messageModel{}, "id = ?", id).Error
}

// AddDeliveredTo appends userID to the message's delivered set if absent,
// reporting whether the set actually grew.
func (s *Store) AddDeliveredTo(ctx context.Context, messageID, userID string) (bool, error) {
	var added bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model messageModel
		if err := tx.First(&model, "id = ?", messageID).Error; err != nil {
			return mapErr(err)
		}
		if contains(model.DeliveredTo, userID) {
			return nil
		}
		model.DeliveredTo = append(model.DeliveredTo, userID)
		model.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// MarkConversationRead adds readerID to the read set of every unread message
// sent by partnerID to readerID, returning the number of records changed.
func (s *Store) MarkConversationRead(ctx context.Context, readerID, partnerID string) (int64, error) {
	var modified int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []messageModel
		if err := tx.Where("sender_id = ? AND receiver_id = ?", partnerID, readerID).Find(&models).Error; err != nil {
			return err
		}
		return markRead(tx, models, readerID, &modified)
	})
	return modified, err
}

// MarkGroupRead adds readerID to the read set of every unread message in the
// group, returning the number of records changed.
func (s *Store) MarkGroupRead(ctx context.Context, readerID, groupID string) (int64, error) {
	var modified int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []messageModel
		if err := tx.Where("group_id = ?", groupID).Find(&models).Error; err != nil {
			return err
		}
		return markRead(tx, models, readerID, &modified)
	})
	return modified, err
}

func markRead(tx *gorm.DB, models []messageModel, readerID string, modified *int64) error {
	now := time.Now().UTC()
	for i := range models {
		if contains(models[i].ReadBy, readerID) {
			continue
		}
		models[i].ReadBy = append(models[i].ReadBy, readerID)
		models[i].UpdatedAt = now
		if err := tx.Save(&models[i]).Error; err != nil {
			return err
		}
		*modified++
	}
	return nil
}

func (s *Store) ListConversation(ctx context.Context, userA, userB string, limit int) ([]storage.Message, error) {
	var models []messageModel
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("created_at DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toMessages(models), nil
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID string, limit int) ([]storage.Message, error) {
	var models []messageModel
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).
		Order("created_at DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toMessages(models), nil
}

// toMessages reverses the DESC query result into chronological order.
func toMessages(models []messageModel) []storage.Message {
	msgs := make([]storage.Message, len(models))
	for i := range models {
		msgs[len(models)-1-i] = storage.Message(models[i])
	}
	return msgs
}

func (s *Store) CreateGroup(ctx context.Context, group *storage.Group) error {
	if group == nil {
		return errors.New("nil group")
	}
	model := groupModel(*group)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) GetGroup(ctx context.Context, id string) (*storage.Group, error) {
	var model groupModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	group := storage.Group(model)
	return &group, nil
}

func (s *Store) CreateStatus(ctx context.Context, status *storage.Status) error {
	if status == nil {
		return errors.New("nil status")
	}
	model := statusModel(*status)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) ListActiveStatuses(ctx context.Context, ownerIDs []string, now time.Time) ([]storage.Status, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var models []statusModel
	err := s.db.WithContext(ctx).Where("owner_id IN ? AND expires_at > ?", ownerIDs, now).
		Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	statuses := make([]storage.Status, 0, len(models))
	for _, m := range models {
		statuses = append(statuses, storage.Status(m))
	}
	return statuses, nil
}

func (s *Store) ListExpiredStatuses(ctx context.Context, now time.Time, limit int) ([]storage.Status, error) {
	var models []statusModel
	err := s.db.WithContext(ctx).Where("expires_at <= ?", now).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	statuses := make([]storage.Status, 0, len(models))
	for _, m := range models {
		statuses = append(statuses, storage.Status(m))
	}
	return statuses, nil
}

func (s *Store) DeleteStatus(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&statusModel{}, "id = ?", id).Error
}

func (s *Store) CreatePost(ctx context.Context, post *storage.Post) error {
	if post == nil {
		return errors.New("nil post")
	}
	model := postModel(*post)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) ListExpiredPosts(ctx context.Context, now time.Time, limit int) ([]storage.Post, error) {
	var models []postModel
	err := s.db.WithContext(ctx).Where("expires_at <= ?", now).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	posts := make([]storage.Post, 0, len(models))
	for _, m := range models {
		posts = append(posts, storage.Post(m))
	}
	return posts, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&postModel{}, "id = ?", id).Error
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
