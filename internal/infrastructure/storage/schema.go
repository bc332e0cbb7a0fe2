package storage

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'news_media',
		published_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		significance TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS article_topics (
		article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		topic_id INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		confidence REAL NOT NULL DEFAULT 1.0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		added_at TEXT NOT NULL,
		PRIMARY KEY (article_id, topic_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_article_topics_topic ON article_topics(topic_id)`,
	`CREATE TABLE IF NOT EXISTS ai_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL UNIQUE REFERENCES articles(id) ON DELETE CASCADE,
		suggested_topics TEXT NOT NULL DEFAULT '{}',
		key_entities TEXT NOT NULL DEFAULT '{}',
		geopolitical_tags TEXT NOT NULL DEFAULT '[]',
		significance_score INTEGER NOT NULL DEFAULT 5,
		summary TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		analyzed_at TEXT NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'news_media',
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		significance TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS article_topics (
		article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		added_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (article_id, topic_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_article_topics_topic ON article_topics(topic_id)`,
	`CREATE TABLE IF NOT EXISTS ai_analyses (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL UNIQUE REFERENCES articles(id) ON DELETE CASCADE,
		suggested_topics TEXT NOT NULL DEFAULT '{}',
		key_entities TEXT NOT NULL DEFAULT '{}',
		geopolitical_tags TEXT NOT NULL DEFAULT '[]',
		significance_score INTEGER NOT NULL DEFAULT 5,
		summary TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		analyzed_at TIMESTAMPTZ NOT NULL
	)`,
}
