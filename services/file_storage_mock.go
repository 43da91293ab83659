package services

import (
	"context"
	"fmt"
	"sync"
)

// MockFileStorage is an in-memory FileStorage for testing
type MockFileStorage struct {
	uploadedFiles map[string][]byte // map of storage key to file content
	mu            sync.RWMutex

	// UploadErr, when set, is returned by every Upload
	UploadErr error
}

// NewMockFileStorage creates a new mock file storage
func NewMockFileStorage() *MockFileStorage {
	return &MockFileStorage{
		uploadedFiles: make(map[string][]byte),
	}
}

// Upload simulates storing a file
func (m *MockFileStorage) Upload(_ context.Context, content []byte, filename string, orderID, _ uint) (StoredFile, error) {
	if m.UploadErr != nil {
		return StoredFile{}, m.UploadErr
	}

	key := StorageKey(orderID, filename)

	m.mu.Lock()
	m.uploadedFiles[key] = append([]byte(nil), content...)
	m.mu.Unlock()

	return StoredFile{Key: key, URL: fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s", key)}, nil
}

// Delete simulates deleting a file
func (m *MockFileStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.uploadedFiles, key)
	m.mu.Unlock()

	return nil
}

// GetUploadedFiles returns all uploaded files (for testing assertions)
func (m *MockFileStorage) GetUploadedFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make(map[string][]byte, len(m.uploadedFiles))
	for k, v := range m.uploadedFiles {
		files[k] = v
	}
	return files
}

// FileExists checks if a file exists in mock storage
func (m *MockFileStorage) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.uploadedFiles[key]
	return exists
}
