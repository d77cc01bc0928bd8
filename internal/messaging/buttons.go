package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/util"
)

// ButtonOptionFormat renders one reply button on text-only transports.
const ButtonOptionFormat = "\n%d. %s"

// RenderButtons appends the numbered button titles to body.
func RenderButtons(body string, buttons []models.Button) string {
	var b strings.Builder
	b.WriteString(body)
	for i, btn := range buttons {
		fmt.Fprintf(&b, ButtonOptionFormat, i+1, btn.Title)
	}
	return b.String()
}

// DefaultMenuTTL is how long a numbered menu stays answerable. It matches the
// default session idle timeout.
const DefaultMenuTTL = 30 * time.Minute

type rememberedMenu struct {
	buttons []models.Button
	sentAt  time.Time
}

// menuMemory remembers the last numbered menu sent to each sender so a numeric
// reply can be turned back into a button press. Menus older than ttl are
// ignored and purged whenever a new menu is remembered.
type menuMemory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	menus map[string]rememberedMenu
}

func newMenuMemory() *menuMemory {
	return &menuMemory{ttl: DefaultMenuTTL, now: time.Now, menus: make(map[string]rememberedMenu)}
}

func (m *menuMemory) remember(to string, buttons []models.Button) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.purgeLocked(now)
	m.menus[util.NormalizeSenderID(to)] = rememberedMenu{buttons: append([]models.Button(nil), buttons...), sentAt: now}
}

// purgeLocked drops expired menus and returns how many were removed.
func (m *menuMemory) purgeLocked(now time.Time) int {
	n := 0
	for key, menu := range m.menus {
		if now.Sub(menu.sentAt) > m.ttl {
			delete(m.menus, key)
			n++
		}
	}
	return n
}

func (m *menuMemory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.menus)
}

// translate consumes the remembered menu when text is a valid option number.
func (m *menuMemory) translate(from, text string) (*models.InteractiveReply, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, false
	}
	key := util.NormalizeSenderID(from)
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(menu.sentAt) > m.ttl {
		delete(m.menus, key)
		return nil, false
	}
	if n < 1 || n > len(menu.buttons) {
		return nil, false
	}
	delete(m.menus, key)
	btn := menu.buttons[n-1]
	return &models.InteractiveReply{Type: models.InteractiveTypeButtonReply, ID: btn.ID, Title: btn.Title}, true
}

// textInbound builds the inbound message for a plain text body, translating
// numeric menu answers into interactive replies.
func (m *menuMemory) textInbound(from, messageID, body string, profile *models.SenderProfile, ts int64) models.InboundMessage {
	msg := models.InboundMessage{
		SenderID:  from,
		MessageID: messageID,
		Type:      models.MessageTypeText,
		Text:      body,
		Profile:   profile,
		Timestamp: ts,
	}
	if reply, ok := m.translate(from, body); ok {
		msg.Type = models.MessageTypeInteractive
		msg.Text = ""
		msg.Interactive = reply
	}
	return msg
}
