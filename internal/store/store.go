// Package store is the relational boundary of the engine: game rows,
// rule templates, and the write-behind persistence of live state. The
// gameplay path never waits on anything in here.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("not found")

type Game struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	DirectorID       string
	DirectorPassword string
	MaxPlayers       int
	Status           string
	RulesConfig      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Player struct {
	GameID   string `gorm:"primaryKey"`
	ID       string `gorm:"primaryKey"`
	Name     string
	Password string
	Zone     string
}

type RuleTemplate struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Config    string
	CreatedAt time.Time
}

type Snapshot struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"index"`
	Round     int
	Payload   []byte
	CreatedAt time.Time
}

type RoundLog struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"index"`
	Round     int
	Message   string
	CreatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Game{}, &Player{}, &RuleTemplate{}, &Snapshot{}, &RoundLog{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateGame(g *Game, players []Player) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		if len(players) > 0 {
			if err := tx.Create(&players).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetGame(id string) (*Game, error) {
	var g Game
	if err := s.db.First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) PlayersFor(gameID string) ([]Player, error) {
	var players []Player
	if err := s.db.Where("game_id = ?", gameID).Order("id").Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func (s *Store) FindPlayer(gameID, playerID string) (*Player, error) {
	var p Player
	err := s.db.First(&p, "game_id = ? AND id = ?", gameID, playerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateGameStatus(id, status string) error {
	return s.db.Model(&Game{}).Where("id = ?", id).Update("status", status).Error
}

func (s *Store) ListTemplates() ([]RuleTemplate, error) {
	var templates []RuleTemplate
	if err := s.db.Order("created_at").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) GetTemplate(id string) (*RuleTemplate, error) {
	var tmpl RuleTemplate
	if err := s.db.First(&tmpl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tmpl, nil
}

func (s *Store) SaveSnapshot(gameID string, round int, payload []byte) error {
	return s.db.Create(&Snapshot{GameID: gameID, Round: round, Payload: payload}).Error
}

func (s *Store) SaveRoundLog(gameID string, round int, message string) error {
	return s.db.Create(&RoundLog{GameID: gameID, Round: round, Message: message}).Error
}
