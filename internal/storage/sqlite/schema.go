// ABOUTME: SQLite database schema for lesson storage
// ABOUTME: Creates lesson, study content and chunk vector tables with their indexes
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Lessons table (one row per ingested document)
CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    framework TEXT,
    level TEXT,
    content_hash TEXT NOT NULL,
    summary TEXT,
    bullets TEXT,
    reading_minutes INTEGER DEFAULT 0,
    fallback INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Flashcards table (ordered per lesson)
CREATE TABLE IF NOT EXISTS flashcards (
    lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    PRIMARY KEY (lesson_id, position)
);

-- Quiz items table (options stored as a JSON array)
CREATE TABLE IF NOT EXISTS quiz_items (
    lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    question TEXT NOT NULL,
    options TEXT NOT NULL,
    answer TEXT NOT NULL,
    PRIMARY KEY (lesson_id, position)
);

-- Concept maps table (nodes and edges stored as JSON)
CREATE TABLE IF NOT EXISTS concept_maps (
    lesson_id TEXT PRIMARY KEY REFERENCES lessons(id) ON DELETE CASCADE,
    nodes TEXT NOT NULL,
    edges TEXT NOT NULL
);

-- Chunks table (document windows with their embedding vectors)
CREATE TABLE IF NOT EXISTS chunks (
    lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    vector BLOB,
    PRIMARY KEY (lesson_id, chunk_index)
);

-- Indexes for efficient querying
CREATE INDEX IF NOT EXISTS idx_lessons_hash ON lessons(content_hash);
CREATE INDEX IF NOT EXISTS idx_lessons_user ON lessons(user_id);
CREATE INDEX IF NOT EXISTS idx_lessons_created ON lessons(created_at);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1
