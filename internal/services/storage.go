package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	bolt "go.etcd.io/bbolt"
)

const (
	sessionsBucket = "sessions"
	cookiesBucket  = "browser_cookies"
	analysesBucket = "analyses"
	metadataBucket = "metadata"

	lastAnalysisKey = "last"
	lastUpdateKey   = "last_update"
)

type storage struct {
	db     *bolt.DB
	config *common.StorageConfig
}

// NewStorage opens the bbolt database used for persisted sessions and the
// latest analysis snapshot.
func NewStorage(config *common.StorageConfig) (interfaces.Storage, error) {
	dbDir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if config.BackupDir != "" {
		if err := os.MkdirAll(config.BackupDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	db, err := bolt.Open(config.DatabasePath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{sessionsBucket, cookiesBucket, analysesBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &storage{
		db:     db,
		config: config,
	}, nil
}

func (s *storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *storage) SaveSession(key string, session *models.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", key, err)
		}
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(key), data)
	})
}

func (s *storage) LoadSession(key string) (*models.Session, error) {
	var session *models.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(sessionsBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		var loaded models.Session
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("failed to unmarshal session %s: %w", key, err)
		}
		session = &loaded
		return nil
	})

	return session, err
}

func (s *storage) DeleteSession(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Delete([]byte(key))
	})
}

func (s *storage) SaveBrowserCookies(key string, cookies []models.BrowserCookie) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cookies)
		if err != nil {
			return fmt.Errorf("failed to marshal cookies %s: %w", key, err)
		}
		return tx.Bucket([]byte(cookiesBucket)).Put([]byte(key), data)
	})
}

func (s *storage) LoadBrowserCookies(key string) ([]models.BrowserCookie, error) {
	var cookies []models.BrowserCookie

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(cookiesBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &cookies)
	})

	return cookies, err
}

func (s *storage) SaveLastAnalysis(result *models.AnalysisResult) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis result: %w", err)
		}
		if err := tx.Bucket([]byte(analysesBucket)).Put([]byte(lastAnalysisKey), data); err != nil {
			return err
		}

		lastUpdateData, _ := time.Now().MarshalBinary()
		return tx.Bucket([]byte(metadataBucket)).Put([]byte(lastUpdateKey), lastUpdateData)
	})
}

func (s *storage) LoadLastAnalysis() (*models.AnalysisResult, error) {
	var result *models.AnalysisResult

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(analysesBucket)).Get([]byte(lastAnalysisKey))
		if data == nil {
			return nil
		}
		var loaded models.AnalysisResult
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("failed to unmarshal analysis result: %w", err)
		}
		result = &loaded
		return nil
	})

	return result, err
}

// Backup copies the database file into the backup directory.
func (s *storage) Backup() error {
	if s.config.BackupDir == "" {
		return nil
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(s.config.BackupDir, fmt.Sprintf("analyzer_%s.db", timestamp))

	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, 0600)
	})
}
