// Package database manages the PostgreSQL connection pool and
// bootstraps the schema on startup.
package database

// Schema contains the SQL statements for the application database.
// All timestamps are TIMESTAMPTZ and written as UTC instants.
const Schema = `
-- users: Service accounts. user_id = 1 is the built-in default admin,
-- ensured at startup from config. Login uniqueness is case-insensitive.
CREATE TABLE IF NOT EXISTS users (
    user_id          BIGSERIAL PRIMARY KEY,
    login            VARCHAR(255) NOT NULL,
    username         VARCHAR(255) NOT NULL,
    password_hash    VARCHAR(255) NOT NULL,
    user_level       VARCHAR(16) NOT NULL DEFAULT 'user',
    can_login        BOOLEAN NOT NULL DEFAULT TRUE,
    can_edit_objects BOOLEAN NOT NULL DEFAULT TRUE,
    registered_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_login_lower ON users(LOWER(login));

-- sessions: Opaque bearer tokens with sliding expiration. A session row
-- is prolonged on every authenticated request and deleted on logout,
-- expiry, or when the owner loses can_login.
CREATE TABLE IF NOT EXISTS sessions (
    access_token    VARCHAR(64) PRIMARY KEY,
    user_id         BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    expiration_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_expiration ON sessions(expiration_time);

-- login_rate_limits: One row per source IP. Created on the first failed
-- login, escalated after the tenth, removed on success or by the
-- reconciliation job once cant_login_until is a day in the past.
CREATE TABLE IF NOT EXISTS login_rate_limits (
    ip_address            VARCHAR(64) PRIMARY KEY,
    failed_login_attempts INT NOT NULL DEFAULT 0,
    cant_login_until      TIMESTAMPTZ NOT NULL
);

-- tags: Name uniqueness is case-insensitive. Non-published tags hide
-- every object carrying them from non-admin callers.
CREATE TABLE IF NOT EXISTS tags (
    tag_id          BIGSERIAL PRIMARY KEY,
    tag_name        VARCHAR(255) NOT NULL,
    tag_description TEXT NOT NULL DEFAULT '',
    is_published    BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL,
    modified_at     TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name_lower ON tags(LOWER(tag_name));
CREATE INDEX IF NOT EXISTS idx_tags_modified_at ON tags(modified_at);

-- objects: Attribute rows shared by all four object types. object_type
-- is immutable after creation (enforced in code).
CREATE TABLE IF NOT EXISTS objects (
    object_id          BIGSERIAL PRIMARY KEY,
    object_type        VARCHAR(16) NOT NULL,
    object_name        VARCHAR(255) NOT NULL,
    object_description TEXT NOT NULL DEFAULT '',
    owner_id           BIGINT NOT NULL REFERENCES users(user_id),
    is_published       BOOLEAN NOT NULL DEFAULT FALSE,
    display_in_feed    BOOLEAN NOT NULL DEFAULT FALSE,
    feed_timestamp     TIMESTAMPTZ,
    show_description   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL,
    modified_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_modified_at ON objects(modified_at);
CREATE INDEX IF NOT EXISTS idx_objects_feed ON objects(feed_timestamp) WHERE display_in_feed;

-- links, markdown, to_do_lists, composite_properties: one payload table
-- per object type, keyed by object_id.
CREATE TABLE IF NOT EXISTS links (
    object_id                BIGINT PRIMARY KEY REFERENCES objects(object_id) ON DELETE CASCADE,
    link                     TEXT NOT NULL,
    show_description_as_link BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS markdown (
    object_id BIGINT PRIMARY KEY REFERENCES objects(object_id) ON DELETE CASCADE,
    raw_text  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS to_do_lists (
    object_id BIGINT PRIMARY KEY REFERENCES objects(object_id) ON DELETE CASCADE,
    sort_type VARCHAR(16) NOT NULL DEFAULT 'default'
);

CREATE TABLE IF NOT EXISTS to_do_list_items (
    object_id   BIGINT NOT NULL REFERENCES to_do_lists(object_id) ON DELETE CASCADE,
    item_number INT NOT NULL,
    item_state  VARCHAR(16) NOT NULL DEFAULT 'active',
    item_text   TEXT NOT NULL DEFAULT '',
    commentary  TEXT NOT NULL DEFAULT '',
    indent      INT NOT NULL DEFAULT 0,
    is_expanded BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (object_id, item_number)
);

CREATE TABLE IF NOT EXISTS composite_properties (
    object_id         BIGINT PRIMARY KEY REFERENCES objects(object_id) ON DELETE CASCADE,
    display_mode      VARCHAR(16) NOT NULL DEFAULT 'basic',
    numerate_chapters BOOLEAN NOT NULL DEFAULT FALSE
);

-- composite_subobjects: The adjacency table of the composite graph.
-- Cycles are permitted on disk; traversals carry a visited set.
CREATE TABLE IF NOT EXISTS composite_subobjects (
    object_id    BIGINT NOT NULL REFERENCES objects(object_id) ON DELETE CASCADE,
    subobject_id BIGINT NOT NULL REFERENCES objects(object_id) ON DELETE CASCADE,
    "column"     INT NOT NULL,
    "row"        INT NOT NULL,
    selected_tab INT NOT NULL DEFAULT 0,
    is_expanded  BOOLEAN NOT NULL DEFAULT TRUE,
    show_description_composite         VARCHAR(8) NOT NULL DEFAULT 'inherit',
    show_description_as_link_composite VARCHAR(8) NOT NULL DEFAULT 'inherit',
    PRIMARY KEY (object_id, subobject_id),
    UNIQUE (object_id, "column", "row")
);

CREATE INDEX IF NOT EXISTS idx_composite_subobjects_subobject ON composite_subobjects(subobject_id);

-- objects_tags: many-to-many with a uniqueness invariant; both
-- endpoints cascade.
CREATE TABLE IF NOT EXISTS objects_tags (
    object_id BIGINT NOT NULL REFERENCES objects(object_id) ON DELETE CASCADE,
    tag_id    BIGINT NOT NULL REFERENCES tags(tag_id) ON DELETE CASCADE,
    PRIMARY KEY (object_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_objects_tags_tag ON objects_tags(tag_id);

-- searchables: Denormalized search documents, one row per object or
-- tag (never both). The generated tsvector weights zone A above B
-- above C; ts_rank's default weight vector preserves that ordering.
CREATE TABLE IF NOT EXISTS searchables (
    object_id   BIGINT REFERENCES objects(object_id) ON DELETE CASCADE,
    tag_id      BIGINT REFERENCES tags(tag_id) ON DELETE CASCADE,
    modified_at TIMESTAMPTZ NOT NULL,
    text_a      TEXT NOT NULL DEFAULT '',
    text_b      TEXT NOT NULL DEFAULT '',
    text_c      TEXT NOT NULL DEFAULT '',
    ts          TSVECTOR GENERATED ALWAYS AS (
        setweight(to_tsvector('simple', text_a), 'A') ||
        setweight(to_tsvector('simple', text_b), 'B') ||
        setweight(to_tsvector('simple', text_c), 'C')
    ) STORED,
    CHECK ((object_id IS NULL) <> (tag_id IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_searchables_object ON searchables(object_id) WHERE object_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_searchables_tag ON searchables(tag_id) WHERE tag_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_searchables_ts ON searchables USING gin(ts);

-- settings: Key/value service settings. Anonymous callers may read only
-- is_public rows.
CREATE TABLE IF NOT EXISTS settings (
    setting_name  VARCHAR(255) PRIMARY KEY,
    setting_value TEXT NOT NULL,
    is_public     BOOLEAN NOT NULL DEFAULT FALSE
);

INSERT INTO settings (setting_name, setting_value, is_public)
VALUES ('non_admin_registration_allowed', 'false', TRUE)
ON CONFLICT (setting_name) DO NOTHING;
`
