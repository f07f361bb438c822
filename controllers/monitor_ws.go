package controller

import (
	"log"
	"time"

	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"mailrules/models"
	"mailrules/utils"
)

// wsPollInterval is how often the stream checks for new log entries.
const wsPollInterval = 5 * time.Second

// logStreamConn is the slice of the websocket connection the stream
// needs; *websocket.Conn satisfies it.
type logStreamConn interface {
	ReadJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
}

// HandleMonitorEventsWS streams the user's new EmailLog entries over a
// websocket, so the UI can show processing activity without polling the
// REST endpoint. The first client message must carry the access token;
// the upgrade itself cannot pass the Authorization header from browsers.
func HandleMonitorEventsWS(db *gorm.DB) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		userID, ok := authenticateLogStream(c)
		if !ok {
			return
		}

		var lastID uint
		db.Model(&models.EmailLog{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(id), 0)").
			Scan(&lastID)

		streamLogEntries(c, wsPollInterval, lastID, func(afterID uint) ([]models.EmailLog, error) {
			var entries []models.EmailLog
			err := db.Where("user_id = ? AND id > ?", userID, afterID).
				Order("id ASC").
				Limit(50).
				Find(&entries).Error
			return entries, err
		})
	}
}

func authenticateLogStream(c logStreamConn) (uint, bool) {
	var input struct {
		Token string `json:"token"`
	}
	if err := c.ReadJSON(&input); err != nil {
		log.Printf("monitor ws: error reading auth message: %v", err)
		return 0, false
	}

	claims, err := utils.ParseJWTToken(input.Token)
	if err != nil {
		_ = c.WriteJSON(map[string]string{"error": "invalid token"})
		return 0, false
	}
	return claims.UserID, true
}

// streamLogEntries pushes entries past lastID to the client on each poll.
// A read pump watches the connection, so a client that went away ends the
// stream at the next read error instead of lingering until a write
// happens to fail.
func streamLogEntries(c logStreamConn, interval time.Duration, lastID uint, fetch func(afterID uint) ([]models.EmailLog, error)) {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			entries, err := fetch(lastID)
			if err != nil {
				log.Printf("monitor ws: query after id %d: %v", lastID, err)
				return
			}
			for _, entry := range entries {
				if err := c.WriteJSON(entry); err != nil {
					return
				}
				lastID = entry.ID
			}
		}
	}
}
