package controllers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name           string
		subject        func(app *testApp) string
		requestBody    any
		expectedStatus int
		expectedCode   string
		checkResponse  func(t *testing.T, app *testApp, msg models.ChatMessage)
	}{
		{
			name:           "client writes on own order",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]any{"content": "  Can we try a darker blue?  "},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, app *testApp, msg models.ChatMessage) {
				assert.Equal(t, "Can we try a darker blue?", msg.Content)
				assert.Equal(t, app.client.ID, msg.SenderID)
				assert.Equal(t, app.client.Name, msg.SenderName)
				assert.Equal(t, models.SenderClient, msg.SenderRole)
				assert.Equal(t, models.MessageTypeText, msg.MessageType)
				assert.False(t, msg.IsRead)
			},
		},
		{
			name:           "designer replies",
			subject:        func(app *testApp) string { return app.designer.Auth0ID },
			requestBody:    map[string]any{"content": "Sure, draft attached soon"},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, app *testApp, msg models.ChatMessage) {
				assert.Equal(t, models.SenderDesigner, msg.SenderRole)

				var room models.ChatRoom
				require.NoError(t, app.db.Where("order_id = ?", app.order.ID).First(&room).Error)
				require.NotNil(t, room.AdminID)
				assert.Equal(t, app.designer.ID, *room.AdminID)
			},
		},
		{
			name:    "file message with inline attachment",
			subject: func(app *testApp) string { return app.client.Auth0ID },
			requestBody: map[string]any{
				"message_type": "file",
				"attachments": []map[string]any{
					{"name": "brief.pdf", "url": "https://files.example.com/brief.pdf", "size": 2048},
				},
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, app *testApp, msg models.ChatMessage) {
				assert.Equal(t, models.MessageTypeFile, msg.MessageType)

				var files []models.OrderFile
				require.NoError(t, app.db.Where("order_id = ?", app.order.ID).Find(&files).Error)
				require.Len(t, files, 1)
				assert.Equal(t, "brief.pdf", files[0].Name)
				assert.Equal(t, models.FileDocument, files[0].FileType)
				require.NotNil(t, files[0].MessageID)
				assert.Equal(t, msg.ID, *files[0].MessageID)
			},
		},
		{
			name:           "other client is refused",
			subject:        func(app *testApp) string { return app.other.Auth0ID },
			requestBody:    map[string]any{"content": "hello?"},
			expectedStatus: http.StatusForbidden,
			expectedCode:   chat.CodeNotOrderOwner,
		},
		{
			name:           "empty content",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]any{"content": "   "},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   chat.CodeEmptyMessage,
		},
		{
			name:           "content too long",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]any{"content": strings.Repeat("a", chat.MaxContentLength+1)},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   chat.CodeMessageTooLong,
		},
		{
			name:           "file message without attachments",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]any{"content": "see file", "message_type": "file"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   chat.CodeFileRequired,
		},
		{
			name:           "system type is not accepted from users",
			subject:        func(app *testApp) string { return app.admin.Auth0ID },
			requestBody:    map[string]any{"content": "fake system", "message_type": "system"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   chat.CodeInvalidType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/messages"), tt.subject(app), tt.requestBody)

			if tt.expectedCode != "" {
				assertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)

				var count int64
				require.NoError(t, app.db.Model(&models.ChatMessage{}).Count(&count).Error)
				assert.Zero(t, count, "rejected sends must not write")
				return
			}

			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			var msg models.ChatMessage
			decodeData(t, w, &msg)
			assert.NotZero(t, msg.ID)
			assert.Equal(t, app.order.ID, msg.OrderID)
			tt.checkResponse(t, app, msg)
		})
	}
}

func TestGetMessages(t *testing.T) {
	app := newTestApp(t)

	t.Run("empty thread", func(t *testing.T) {
		w := app.do(t, http.MethodGet, orderPath(app.order.ID, "/messages"), app.client.Auth0ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var messages []models.ChatMessage
		decodeData(t, w, &messages)
		assert.Empty(t, messages)
		assert.Equal(t, 0, *decodeEnvelope(t, w).Count)
	})

	for _, content := range []string{"first", "second", "third"} {
		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/messages"), app.client.Auth0ID, map[string]string{"content": content})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("history in send order", func(t *testing.T) {
		w := app.do(t, http.MethodGet, orderPath(app.order.ID, "/messages"), app.designer.Auth0ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var messages []models.ChatMessage
		decodeData(t, w, &messages)
		require.Len(t, messages, 3)
		assert.Equal(t, "first", messages[0].Content)
		assert.Equal(t, "second", messages[1].Content)
		assert.Equal(t, "third", messages[2].Content)
	})

	t.Run("other client cannot read", func(t *testing.T) {
		w := app.do(t, http.MethodGet, orderPath(app.order.ID, "/messages"), app.other.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusForbidden, chat.CodeNotOrderOwner)
	})

	t.Run("unknown order", func(t *testing.T) {
		w := app.do(t, http.MethodGet, orderPath(4242, "/messages"), app.admin.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusNotFound, chat.CodeOrderNotFound)
	})
}

func TestMarkMessagesRead(t *testing.T) {
	app := newTestApp(t)
	for _, content := range []string{"one", "two"} {
		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/messages"), app.client.Auth0ID, map[string]string{"content": content})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var room models.ChatRoom
	require.NoError(t, app.db.Where("order_id = ?", app.order.ID).First(&room).Error)
	assert.Equal(t, 2, room.UnreadCount)

	markRead := func(subject string) int64 {
		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/messages/read"), subject, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var data struct {
			Marked int64 `json:"marked"`
		}
		decodeData(t, w, &data)
		return data.Marked
	}

	assert.Equal(t, int64(0), markRead(app.client.Auth0ID), "own messages stay unread")
	assert.Equal(t, int64(2), markRead(app.designer.Auth0ID))
	assert.Equal(t, int64(0), markRead(app.designer.Auth0ID), "marking read twice changes nothing")

	require.NoError(t, app.db.Where("order_id = ?", app.order.ID).First(&room).Error)
	assert.Equal(t, 0, room.UnreadCount)
}
