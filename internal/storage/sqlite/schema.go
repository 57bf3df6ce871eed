package sqlite

const schema = `
-- Deals table: the aggregate root
CREATE TABLE IF NOT EXISTS deals (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    status TEXT NOT NULL DEFAULT 'DRAFT_INGESTED',
    address TEXT NOT NULL DEFAULT '',
    property_type TEXT NOT NULL DEFAULT '',
    asking_price REAL,
    seller_id TEXT NOT NULL DEFAULT '',
    seller_has_direct_access INTEGER NOT NULL DEFAULT 0,
    seller_receive_notifications INTEGER NOT NULL DEFAULT 1,
    seller_requires_om_approval INTEGER NOT NULL DEFAULT 1,
    seller_requires_buyer_approval INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Broker ownership edges with per-deal capability flags
CREATE TABLE IF NOT EXISTS deal_brokers (
    deal_id TEXT NOT NULL REFERENCES deals(id),
    broker_id TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0,
    can_approve_om INTEGER NOT NULL DEFAULT 0,
    can_distribute INTEGER NOT NULL DEFAULT 0,
    can_authorize INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (deal_id, broker_id)
);

-- Extracted claims. Mutated only by verification and conflict resolution.
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL REFERENCES deals(id),
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    numeric_value REAL,
    display_value TEXT NOT NULL DEFAULT '',
    source_document_id TEXT NOT NULL DEFAULT '',
    source_page INTEGER NOT NULL DEFAULT 0,
    source_snippet TEXT NOT NULL DEFAULT '',
    extraction_method TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    verification_status TEXT NOT NULL DEFAULT 'UNVERIFIED',
    verified_by TEXT NOT NULL DEFAULT '',
    verified_at DATETIME,
    corrected_value TEXT,
    rejection_reason TEXT NOT NULL DEFAULT '',
    conflict_group_id TEXT,
    superseded_by TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_claims_deal_field ON claims(deal_id, field);

-- Conflict groups. Never deleted; resolution flips status (audit trail).
-- row_version serializes resolution against concurrent resolvers.
CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL REFERENCES deals(id),
    field TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    variance REAL NOT NULL DEFAULT 0,
    resolution_method TEXT NOT NULL DEFAULT '',
    resolved_value TEXT,
    resolved_claim_id TEXT,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    row_version INTEGER NOT NULL DEFAULT 1,
    escalated_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conflicts_deal ON conflicts(deal_id, status);

-- OM versions. The partial unique index enforces at most one DRAFT version
-- per deal, which is what makes concurrent generateOMDraft calls safe.
CREATE TABLE IF NOT EXISTS om_versions (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL REFERENCES deals(id),
    version_number INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'DRAFT',
    sections TEXT NOT NULL DEFAULT '{}',
    claim_refs TEXT NOT NULL DEFAULT '[]',
    broker_approved_by TEXT NOT NULL DEFAULT '',
    broker_approved_at DATETIME,
    seller_approved_by TEXT NOT NULL DEFAULT '',
    seller_approved_at DATETIME,
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (deal_id, version_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_om_single_draft
    ON om_versions(deal_id) WHERE status = 'DRAFT';

-- Distributions
CREATE TABLE IF NOT EXISTS distributions (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL REFERENCES deals(id),
    om_version_id TEXT NOT NULL REFERENCES om_versions(id),
    listing_type TEXT NOT NULL DEFAULT 'PRIVATE',
    status TEXT NOT NULL DEFAULT 'PENDING',
    is_anonymous_seller INTEGER NOT NULL DEFAULT 0,
    anonymous_label TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS distribution_recipients (
    id TEXT PRIMARY KEY,
    distribution_id TEXT NOT NULL REFERENCES distributions(id),
    buyer_id TEXT NOT NULL,
    match_type TEXT NOT NULL DEFAULT 'MANUAL',
    match_score REAL NOT NULL DEFAULT 0,
    is_anonymous INTEGER NOT NULL DEFAULT 0,
    anonymous_label TEXT NOT NULL DEFAULT '',
    pushed_at DATETIME,
    viewed_at DATETIME,
    view_duration_secs INTEGER NOT NULL DEFAULT 0,
    pages_viewed INTEGER NOT NULL DEFAULT 0,
    escalated_at DATETIME,
    UNIQUE (distribution_id, buyer_id)
);

-- Buyer responses. The partial unique index enforces one live (non-
-- superseded) response per recipient; an explicit supersede closes the old
-- row before inserting the new one.
CREATE TABLE IF NOT EXISTS buyer_responses (
    id TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL REFERENCES distribution_recipients(id),
    buyer_id TEXT NOT NULL,
    response TEXT NOT NULL,
    price_min REAL,
    price_max REAL,
    conditions TEXT NOT NULL DEFAULT '',
    questions TEXT NOT NULL DEFAULT '',
    pass_reason TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    confidential INTEGER NOT NULL DEFAULT 0,
    superseded_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_one_live_response
    ON buyer_responses(recipient_id) WHERE superseded_at IS NULL;

-- Buyer authorizations. Absence of a row for a responded recipient means
-- "unreviewed"; the tagged GateState in the service layer makes that
-- explicit. row_version serializes broker/seller transitions.
CREATE TABLE IF NOT EXISTS buyer_authorizations (
    id TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL UNIQUE REFERENCES distribution_recipients(id),
    status TEXT NOT NULL DEFAULT 'PENDING',
    access_level TEXT NOT NULL DEFAULT 'STANDARD',
    decline_reason TEXT NOT NULL DEFAULT '',
    revoke_reason TEXT NOT NULL DEFAULT '',
    authorized_by TEXT NOT NULL DEFAULT '',
    authorized_at DATETIME,
    seller_confirmed_by TEXT NOT NULL DEFAULT '',
    seller_confirmed_at DATETIME,
    nda_status TEXT NOT NULL DEFAULT 'NOT_SENT',
    nda_sent_at DATETIME,
    nda_signed_at DATETIME,
    data_room_access_granted INTEGER NOT NULL DEFAULT 0,
    row_version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Explicit work items (tasks). Review requests and deal submissions are
-- synthesized from conflicts and recipients at sweep time.
CREATE TABLE IF NOT EXISTS work_items (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL DEFAULT '',
    item_type TEXT NOT NULL DEFAULT 'task',
    title TEXT NOT NULL,
    creator TEXT NOT NULL DEFAULT '',
    assignee TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    escalated_at DATETIME,
    closed INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Append-only audit trail, written in the same transaction as the
-- transition it records.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id, created_at);
`
