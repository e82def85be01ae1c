package raven_transport

import (
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const platform = "go"

// Event represents a single diagnostic report before encoding
type Event struct {
	Level   Level
	Culprit string
	Message string
	Extra   map[string]any
	Tags    map[string]string
}

// User identifies the end user an event is attributed to
type User struct {
	ID       string
	Username string
	Email    string
}

type sdkInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// payload is the JSON document accepted by the store endpoint
type payload struct {
	EventID    string            `json:"event_id"`
	Timestamp  string            `json:"timestamp"`
	ServerName string            `json:"server_name"`
	User       map[string]string `json:"user"`
	Level      string            `json:"level"`
	Culprit    string            `json:"culprit"`
	Message    string            `json:"message"`
	Logger     string            `json:"logger"`
	Platform   string            `json:"platform"`
	SDK        sdkInfo           `json:"sdk"`
	Tags       map[string]string `json:"tags,omitempty"`
	Extra      map[string]any    `json:"extra,omitempty"`
}

// Encoder turns events into store payloads, stamping them with the
// process-wide user and tag context.
type Encoder struct {
	mu         sync.RWMutex
	client     ClientConfig
	user       User
	userData   map[string]string
	globalTags map[string]string

	serverName string
	ipAddress  string
	now        func() time.Time
	newID      func() string
}

// NewEncoder creates an encoder identifying itself as the given client
func NewEncoder(client ClientConfig) *Encoder {
	return &Encoder{
		client:     client,
		userData:   make(map[string]string),
		globalTags: make(map[string]string),
		serverName: hostName(),
		ipAddress:  localAddress(),
		now:        time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// SetGlobalTag adds a tag sent with every event. Empty keys or values are ignored.
func (e *Encoder) SetGlobalTag(key, value string) {
	if key == "" || value == "" {
		return
	}
	e.mu.Lock()
	e.globalTags[key] = value
	e.mu.Unlock()
}

// SetUser replaces the user identity fields
func (e *Encoder) SetUser(user User) {
	e.mu.Lock()
	e.user = user
	e.mu.Unlock()
}

// SetUserData adds a custom user field. Empty keys or values are ignored.
func (e *Encoder) SetUserData(key, value string) {
	if key == "" || value == "" {
		return
	}
	e.mu.Lock()
	e.userData[key] = value
	e.mu.Unlock()
}

// Encode serializes the event. Explicit event tags win over global tags.
func (e *Encoder) Encode(ev *Event) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := payload{
		EventID:    e.newID(),
		Timestamp:  e.now().UTC().Format("2006-01-02T15:04:05"),
		ServerName: e.serverName,
		User:       e.userInfo(),
		Level:      ev.Level.String(),
		Culprit:    ev.Culprit,
		Message:    ev.Message,
		Logger:     e.client.Name,
		Platform:   platform,
		SDK:        sdkInfo{Name: e.client.Name, Version: e.client.Version},
		Tags:       mergeTags(e.globalTags, ev.Tags),
	}
	if len(ev.Extra) > 0 {
		p.Extra = ev.Extra
	}

	return json.Marshal(&p)
}

func (e *Encoder) userInfo() map[string]string {
	user := make(map[string]string, len(e.userData)+4)
	if e.user.ID != "" {
		user["id"] = e.user.ID
	}
	if e.user.Username != "" {
		user["username"] = e.user.Username
	}
	if e.user.Email != "" {
		user["email"] = e.user.Email
	}
	for k, v := range e.userData {
		user[k] = v
	}
	user["ip_address"] = e.ipAddress
	return user
}

func mergeTags(global, explicit map[string]string) map[string]string {
	if len(global) == 0 && len(explicit) == 0 {
		return nil
	}
	tags := make(map[string]string, len(global)+len(explicit))
	for k, v := range global {
		tags[k] = v
	}
	for k, v := range explicit {
		tags[k] = v
	}
	return tags
}
