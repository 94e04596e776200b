package store

const schema = `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        seq INTEGER NOT NULL, -- insertion order within the conversation
        is_user BOOLEAN NOT NULL,
        content_json TEXT NOT NULL, -- JSON string or structured result object
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id),
        UNIQUE (conversation_id, seq)
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations (created_at);
    `

const listConversationsQuery = `
    SELECT c.id, c.title, c.created_at, c.updated_at,
           (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
    FROM conversations c`
