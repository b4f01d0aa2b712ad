package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const (
	papersCollection  = "papers"
	dayMetaCollection = "day_meta"
	cacheCollection   = "cache_entries"
)

// paperDoc keeps the summary as JSON text; BSON dates would drop sub-millisecond precision.
type paperDoc struct {
	ID      string `bson:"_id"`
	PaperID string `bson:"paperId"`
	Date    string `bson:"date"`
	Title   string `bson:"title"`
	Data    string `bson:"data"`
}

func (d paperDoc) summary() (*domain.PaperSummary, error) {
	return decodePaper([]byte(d.Data))
}

type dayMetaDoc struct {
	Date      string    `bson:"_id"`
	PaperIDs  []string  `bson:"paperIds"`
	FetchedAt time.Time `bson:"fetchedAt"`
}

type cacheDoc struct {
	Key       string `bson:"_id"`
	CacheDate string `bson:"cacheDate"`
	Data      string `bson:"data"`
}

// MongoStore persists the same records as documents, one collection per record kind.
type MongoStore struct {
	client  *mongo.Client
	papers  *mongo.Collection
	dayMeta *mongo.Collection
	cache   *mongo.Collection
}

var _ ports.Store = (*MongoStore)(nil)

// NewMongoStore connects, pings and ensures the lookup index.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:  client,
		papers:  db.Collection(papersCollection),
		dayMeta: db.Collection(dayMetaCollection),
		cache:   db.Collection(cacheCollection),
	}

	_, err = s.dayMeta.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "paperIds", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create day meta index: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DayExists reports whether a day_meta document exists for date.
func (s *MongoStore) DayExists(ctx context.Context, date string) (bool, error) {
	n, err := s.dayMeta.CountDocuments(ctx, bson.M{"_id": date}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count day meta %s: %w", date, err)
	}
	return n > 0, nil
}

// SavePaper upserts the paper document keyed by (date, id).
func (s *MongoStore) SavePaper(ctx context.Context, date string, paper domain.PaperSummary) error {
	doc, err := newPaperDoc(date, paper)
	if err != nil {
		return err
	}
	_, err = s.papers.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert paper %s/%s: %w", date, paper.ID, err)
	}
	return nil
}

// SaveDayMeta replaces the day's id list wholesale.
func (s *MongoStore) SaveDayMeta(ctx context.Context, meta domain.DayMeta) error {
	ids := meta.PaperIDs
	if ids == nil {
		ids = []string{}
	}
	doc := dayMetaDoc{Date: meta.Date, PaperIDs: ids, FetchedAt: meta.FetchedAt}
	_, err := s.dayMeta.ReplaceOne(ctx, bson.M{"_id": meta.Date}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert day meta %s: %w", meta.Date, err)
	}
	return nil
}

// AddPaperToDay merges id with $addToSet so concurrent writers never drop each other.
func (s *MongoStore) AddPaperToDay(ctx context.Context, date, id string, fetchedAt time.Time) error {
	_, err := s.dayMeta.UpdateOne(ctx, bson.M{"_id": date}, addToDayUpdate(id, fetchedAt), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("merge day meta %s: %w", date, err)
	}
	return nil
}

// GetDayMeta returns nil when the date has no document.
func (s *MongoStore) GetDayMeta(ctx context.Context, date string) (*domain.DayMeta, error) {
	var doc dayMetaDoc
	err := s.dayMeta.FindOne(ctx, bson.M{"_id": date}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find day meta %s: %w", date, err)
	}
	return &domain.DayMeta{Date: doc.Date, PaperIDs: doc.PaperIDs, FetchedAt: doc.FetchedAt}, nil
}

// GetPaper returns nil when (date, id) has no document.
func (s *MongoStore) GetPaper(ctx context.Context, date, id string) (*domain.PaperSummary, error) {
	var doc paperDoc
	err := s.papers.FindOne(ctx, bson.M{"_id": paperDocID(date, id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find paper %s/%s: %w", date, id, err)
	}
	return doc.summary()
}

// GetPapersForDate returns the partition in day_meta order when available.
func (s *MongoStore) GetPapersForDate(ctx context.Context, date string) ([]domain.PaperSummary, error) {
	cursor, err := s.papers.Find(ctx, bson.M{"date": date})
	if err != nil {
		return nil, fmt.Errorf("find papers %s: %w", date, err)
	}
	defer cursor.Close(ctx)

	papers := []domain.PaperSummary{}
	for cursor.Next(ctx) {
		var doc paperDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode paper: %w", err)
		}
		paper, err := doc.summary()
		if err != nil {
			return nil, err
		}
		papers = append(papers, *paper)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	meta, err := s.GetDayMeta(ctx, date)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		papers = orderByIDs(papers, meta.PaperIDs)
	}
	return papers, nil
}

// GetAvailableDates lists day_meta ids, newest first.
func (s *MongoStore) GetAvailableDates(ctx context.Context) ([]string, error) {
	return s.listDates(ctx, bson.M{})
}

func (s *MongoStore) listDates(ctx context.Context, filter bson.M) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetProjection(bson.M{"_id": 1})
	cursor, err := s.dayMeta.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find dates: %w", err)
	}
	defer cursor.Close(ctx)

	dates := []string{}
	for cursor.Next(ctx) {
		var doc struct {
			Date string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode date: %w", err)
		}
		dates = append(dates, doc.Date)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return dates, nil
}

// FindPaperByID returns the copy under the newest date whose day_meta lists it.
func (s *MongoStore) FindPaperByID(ctx context.Context, id string) (*domain.LocatedPaper, error) {
	dates, err := s.listDates(ctx, listedDayFilter(id))
	if err != nil {
		return nil, fmt.Errorf("find paper %s: %w", id, err)
	}
	for _, date := range dates {
		paper, err := s.GetPaper(ctx, date, id)
		if err != nil {
			return nil, err
		}
		if paper != nil {
			return &domain.LocatedPaper{Paper: *paper, Date: date}, nil
		}
	}
	return nil, nil
}

// GetCacheEntry returns nil when the key has no document.
func (s *MongoStore) GetCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var doc cacheDoc
	err := s.cache.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cache %s: %w", key, err)
	}
	return &domain.CacheEntry{Key: doc.Key, CacheDate: doc.CacheDate, Data: json.RawMessage(doc.Data)}, nil
}

// SetCacheEntry upserts the entry by key.
func (s *MongoStore) SetCacheEntry(ctx context.Context, entry domain.CacheEntry) error {
	if entry.Key == "" {
		return ErrInvalidKey
	}
	doc := cacheDoc{Key: entry.Key, CacheDate: entry.CacheDate, Data: string(entry.Data)}
	_, err := s.cache.ReplaceOne(ctx, bson.M{"_id": entry.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert cache %s: %w", entry.Key, err)
	}
	return nil
}

func paperDocID(date, id string) string {
	return date + "/" + id
}

func newPaperDoc(date string, paper domain.PaperSummary) (paperDoc, error) {
	data, err := json.Marshal(paper)
	if err != nil {
		return paperDoc{}, fmt.Errorf("marshal paper %s: %w", paper.ID, err)
	}
	return paperDoc{
		ID:      paperDocID(date, paper.ID),
		PaperID: paper.ID,
		Date:    date,
		Title:   paper.Title,
		Data:    string(data),
	}, nil
}

func listedDayFilter(id string) bson.M {
	return bson.M{"paperIds": id}
}

func addToDayUpdate(id string, fetchedAt time.Time) bson.M {
	return bson.M{
		"$addToSet": bson.M{"paperIds": id},
		"$set":      bson.M{"fetchedAt": fetchedAt},
	}
}
