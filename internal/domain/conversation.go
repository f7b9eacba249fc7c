package domain

// Snapshot is the read model of one chat session handed to the presentation
// layer. It never carries the session credential.
type Snapshot struct {
	SessionID        string   `json:"sessionId"`
	Unlocked         bool     `json:"unlocked"`
	Pending          bool     `json:"pending"`
	Input            string   `json:"input"`
	Turns            []Turn   `json:"turns"`
	QuickPrompts     []string `json:"quickPrompts,omitempty"`
	ShowQuickPrompts bool     `json:"showQuickPrompts"`
}

// SessionMeta stores aggregate state for an archived session.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}

// ArchivedTurn is a transcript turn as written to the archive table.
type ArchivedTurn struct {
	PK        string
	SK        string
	SessionID string
	Turn      Turn
	Seq       int
	TTL       int64
}
