package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/storage"
)

// Store is the MongoDB implementation of storage.Store. Delivered/read sets
// rely on $addToSet, so idempotence is atomic per document on the server side.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

type userDoc struct {
	ID          string    `bson:"_id"`
	Username    string    `bson:"username"`
	Password    string    `bson:"password"`
	DisplayName string    `bson:"displayName"`
	Role        string    `bson:"role"`
	Friends     []string  `bson:"friends"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type messageDoc struct {
	ID             string    `bson:"_id"`
	SenderID       string    `bson:"senderId"`
	ReceiverID     string    `bson:"receiverId,omitempty"`
	GroupID        string    `bson:"groupId,omitempty"`
	Text           string    `bson:"text,omitempty"`
	MediaURL       string    `bson:"mediaUrl,omitempty"`
	MediaDeleteKey string    `bson:"mediaDeleteKey,omitempty"`
	MediaType      string    `bson:"mediaType,omitempty"`
	DeliveredTo    []string  `bson:"deliveredTo"`
	ReadBy         []string  `bson:"readBy"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

type groupDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Members   []string  `bson:"members"`
	AdminID   string    `bson:"adminId"`
	Community bool      `bson:"community"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type statusDoc struct {
	ID             string    `bson:"_id"`
	OwnerID        string    `bson:"ownerId"`
	MediaURL       string    `bson:"mediaUrl"`
	MediaDeleteKey string    `bson:"mediaDeleteKey"`
	AudioURL       string    `bson:"audioUrl,omitempty"`
	AudioDeleteKey string    `bson:"audioDeleteKey,omitempty"`
	MediaType      string    `bson:"mediaType"`
	CreatedAt      time.Time `bson:"createdAt"`
	ExpiresAt      time.Time `bson:"expiresAt"`
}

type postDoc struct {
	ID         string        `bson:"_id"`
	OwnerID    string        `bson:"ownerId"`
	Items      []postItemDoc `bson:"items"`
	Visibility string        `bson:"visibility"`
	CreatedAt  time.Time     `bson:"createdAt"`
	ExpiresAt  time.Time     `bson:"expiresAt"`
}

type postItemDoc struct {
	MediaURL       string `bson:"mediaUrl"`
	MediaDeleteKey string `bson:"mediaDeleteKey"`
	ContentType    string `bson:"contentType"`
	Size           int64  `bson:"size"`
}

// NewStore connects to MongoDB using the configured URI and database name.
func NewStore(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Migrate creates the indexes the query paths depend on.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	for coll, key := range map[string]string{"statuses": "expiresAt", "posts": "expiresAt", "messages": "groupId"} {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: key, Value: 1}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	_, err := s.db.Collection("users").InsertOne(ctx, userDoc(*user))
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	var doc userDoc
	if err := s.db.Collection("users").FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	user := storage.User(doc)
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var doc userDoc
	if err := s.db.Collection("users").FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	user := storage.User(doc)
	return &user, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]storage.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection("users").Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]storage.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, storage.User(d))
	}
	return users, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	_, err := s.db.Collection("messages").InsertOne(ctx, messageDoc(*msg))
	return err
}

func (s *Store) GetMessage(ctx context.Context, id string) (*storage.Message, error) {
	var doc messageDoc
	if err := s.db.Collection("messages").FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	msg := storage.Message(doc)
	return &msg, nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id, text string) error {
	result, err := s.db.Collection("messages").UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"text": text, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.Collection("messages").DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// AddDeliveredTo appends userID to the delivered set via $addToSet, reporting
// whether the set actually grew. The update touches nothing but the set so
// ModifiedCount distinguishes a fresh append from a duplicate.
func (s *Store) AddDeliveredTo(ctx context.Context, messageID, userID string) (bool, error) {
	result, err := s.db.Collection("messages").UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$addToSet": bson.M{"deliveredTo": userID},
	})
	if err != nil {
		return false, err
	}
	if result.MatchedCount == 0 {
		return false, storage.ErrNotFound
	}
	return result.ModifiedCount > 0, nil
}

// MarkConversationRead bulk-adds readerID to the read set of unread messages
// from partnerID and reports the modified count.
func (s *Store) MarkConversationRead(ctx context.Context, readerID, partnerID string) (int64, error) {
	return s.markRead(ctx, bson.M{
		"senderId":   partnerID,
		"receiverId": readerID,
		"readBy":     bson.M{"$ne": readerID},
	}, readerID)
}

// MarkGroupRead bulk-adds readerID to the read set of unread group messages
// and reports the modified count.
func (s *Store) MarkGroupRead(ctx context.Context, readerID, groupID string) (int64, error) {
	return s.markRead(ctx, bson.M{
		"groupId": groupID,
		"readBy":  bson.M{"$ne": readerID},
	}, readerID)
}

func (s *Store) markRead(ctx context.Context, filter bson.M, readerID string) (int64, error) {
	result, err := s.db.Collection("messages").UpdateMany(ctx, filter, bson.M{
		"$addToSet": bson.M{"readBy": readerID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (s *Store) ListConversation(ctx context.Context, userA, userB string, limit int) ([]storage.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": userA, "receiverId": userB},
		bson.M{"senderId": userB, "receiverId": userA},
	}}
	return s.listMessages(ctx, filter, limit)
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID string, limit int) ([]storage.Message, error) {
	return s.listMessages(ctx, bson.M{"groupId": groupID}, limit)
}

func (s *Store) listMessages(ctx context.Context, filter bson.M, limit int) ([]storage.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.db.Collection("messages").Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	msgs := make([]storage.Message, len(docs))
	for i := range docs {
		msgs[len(docs)-1-i] = storage.Message(docs[i])
	}
	return msgs, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *storage.Group) error {
	if group == nil {
		return errors.New("nil group")
	}
	_, err := s.db.Collection("groups").InsertOne(ctx, groupDoc(*group))
	return err
}

func (s *Store) GetGroup(ctx context.Context, id string) (*storage.Group, error) {
	var doc groupDoc
	if err := s.db.Collection("groups").FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	group := storage.Group(doc)
	return &group, nil
}

func (s *Store) CreateStatus(ctx context.Context, status *storage.Status) error {
	if status == nil {
		return errors.New("nil status")
	}
	_, err := s.db.Collection("statuses").InsertOne(ctx, statusDoc(*status))
	return err
}

func (s *Store) ListActiveStatuses(ctx context.Context, ownerIDs []string, now time.Time) ([]storage.Status, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"ownerId": bson.M{"$in": ownerIDs}, "expiresAt": bson.M{"$gt": now}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.db.Collection("statuses").Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeStatuses(ctx, cursor)
}

func (s *Store) ListExpiredStatuses(ctx context.Context, now time.Time, limit int) ([]storage.Status, error) {
	filter := bson.M{"expiresAt": bson.M{"$lte": now}}
	cursor, err := s.db.Collection("statuses").Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	return decodeStatuses(ctx, cursor)
}

func decodeStatuses(ctx context.Context, cursor *mongo.Cursor) ([]storage.Status, error) {
	var docs []statusDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	statuses := make([]storage.Status, 0, len(docs))
	for _, d := range docs {
		statuses = append(statuses, storage.Status(d))
	}
	return statuses, nil
}

func (s *Store) DeleteStatus(ctx context.Context, id string) error {
	_, err := s.db.Collection("statuses").DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) CreatePost(ctx context.Context, post *storage.Post) error {
	if post == nil {
		return errors.New("nil post")
	}
	doc := postDoc{
		ID:         post.ID,
		OwnerID:    post.OwnerID,
		Items:      toItemDocs(post.Items),
		Visibility: post.Visibility,
		CreatedAt:  post.CreatedAt,
		ExpiresAt:  post.ExpiresAt,
	}
	_, err := s.db.Collection("posts").InsertOne(ctx, doc)
	return err
}

func (s *Store) ListExpiredPosts(ctx context.Context, now time.Time, limit int) ([]storage.Post, error) {
	filter := bson.M{"expiresAt": bson.M{"$lte": now}}
	cursor, err := s.db.Collection("posts").Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	posts := make([]storage.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, storage.Post{
			ID:         d.ID,
			OwnerID:    d.OwnerID,
			Items:      fromItemDocs(d.Items),
			Visibility: d.Visibility,
			CreatedAt:  d.CreatedAt,
			ExpiresAt:  d.ExpiresAt,
		})
	}
	return posts, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	_, err := s.db.Collection("posts").DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func toItemDocs(items []storage.PostItem) []postItemDoc {
	docs := make([]postItemDoc, 0, len(items))
	for _, item := range items {
		docs = append(docs, postItemDoc(item))
	}
	return docs
}

func fromItemDocs(docs []postItemDoc) []storage.PostItem {
	items := make([]storage.PostItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, storage.PostItem(d))
	}
	return items
}
