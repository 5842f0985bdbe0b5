package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// mongoCalendarDocument mongo 中的日历文档，_id 为 "{propertyId}:{YYYY-MM}"
type mongoCalendarDocument struct {
	ID              string `bson:"_id"`
	models.Calendar `bson:",inline"`
}

// MongoCalendarStore 基于 MongoDB 的日历存储
type MongoCalendarStore struct {
	coll *mongo.Collection
}

// NewMongoCalendarStore 创建 mongo 日历存储并建立索引
func NewMongoCalendarStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoCalendarStore, error) {
	s := &MongoCalendarStore{coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes 为按房源扫描和按生成时间排查陈旧日历建立索引
func (s *MongoCalendarStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "month", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "generatedAt", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create calendar indexes: %w", err)
	}
	return nil
}

func mongoCalendarID(propertyID int64, monthKey string) string {
	return fmt.Sprintf("%d:%s", propertyID, monthKey)
}

// Get 读取日历
func (s *MongoCalendarStore) Get(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	var doc mongoCalendarDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": mongoCalendarID(propertyID, utils.MonthKey(year, month))}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrCalendarNotFound
		}
		return nil, fmt.Errorf("failed to fetch calendar %d/%s: %w", propertyID, utils.MonthKey(year, month), err)
	}
	cal := doc.Calendar
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &cal, nil
}

// Put 整份替换写入（upsert）
func (s *MongoCalendarStore) Put(ctx context.Context, cal *models.Calendar) error {
	if cal == nil {
		return fmt.Errorf("nil calendar")
	}
	id := mongoCalendarID(cal.PropertyID, cal.Month)
	doc := mongoCalendarDocument{ID: id, Calendar: *cal}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store calendar %s: %w", id, err)
	}
	return nil
}
