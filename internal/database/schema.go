package database

import "strings"

// schema is written once with type placeholders and rendered per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    email VARCHAR(255) UNIQUE,
    display_name VARCHAR(255) NOT NULL,
    telegram_id BIGINT UNIQUE,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
    user_id VARCHAR(36) PRIMARY KEY,
    plan_tier VARCHAR(16) NOT NULL,
    monthly_credits INT NOT NULL,
    remaining_credits INT NOT NULL,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL,
    CHECK (remaining_credits >= 0),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS designs (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    title VARCHAR(255) NOT NULL,
    prompt TEXT NOT NULL,
    style_preset VARCHAR(32) NOT NULL,
    colors TEXT NOT NULL,
    reference_image_url TEXT NOT NULL,
    image_url TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    version INT NOT NULL,
    metadata TEXT NOT NULL,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS generations (
    id VARCHAR(36) PRIMARY KEY,
    design_id VARCHAR(36) NOT NULL,
    user_id VARCHAR(36) NOT NULL,
    prompt TEXT NOT NULL,
    variation_count INT NOT NULL,
    outputs TEXT NOT NULL,
    cost_credits INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    metadata TEXT NOT NULL,
    created_at {{TS}} NOT NULL,
    completed_at {{TS}} NULL,
    FOREIGN KEY (design_id) REFERENCES designs(id),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS credit_usage (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    generation_id VARCHAR(36) NULL,
    delta INT NOT NULL,
    balance_after INT NOT NULL,
    description VARCHAR(255) NOT NULL,
    metadata TEXT NOT NULL,
    created_at {{TS}} NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS mockups (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    design_id VARCHAR(36) NOT NULL,
    garment_type VARCHAR(32) NOT NULL,
    garment_color VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    canvas_state TEXT NOT NULL,
    preview_url TEXT NOT NULL,
    print_ready_url TEXT NOT NULL,
    dpi INT NOT NULL,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id),
    FOREIGN KEY (design_id) REFERENCES designs(id)
)`,
	`CREATE TABLE IF NOT EXISTS store_products (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    design_id VARCHAR(36) NOT NULL,
    title VARCHAR(255) NOT NULL,
    slug VARCHAR(64) NOT NULL,
    price DECIMAL(12,2) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    status VARCHAR(16) NOT NULL,
    images TEXT NOT NULL,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL,
    UNIQUE (user_id, slug),
    FOREIGN KEY (user_id) REFERENCES users(id),
    FOREIGN KEY (design_id) REFERENCES designs(id)
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id VARCHAR(36) PRIMARY KEY,
    product_id VARCHAR(36) NOT NULL,
    buyer_id VARCHAR(36) NULL,
    seller_id VARCHAR(36) NOT NULL,
    quantity INT NOT NULL,
    total DECIMAL(12,2) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    status VARCHAR(16) NOT NULL,
    payment_status VARCHAR(16) NOT NULL,
    buyer_email VARCHAR(255) NULL,
    created_at {{TS}} NOT NULL,
    updated_at {{TS}} NOT NULL,
    FOREIGN KEY (product_id) REFERENCES store_products(id),
    FOREIGN KEY (seller_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS promo_codes (
    id VARCHAR(36) PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    max_uses INT NOT NULL,
    uses INT NOT NULL,
    bonus_credits INT NOT NULL,
    created_at {{TS}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS promo_redemptions (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    promo_code_id VARCHAR(36) NOT NULL,
    created_at {{TS}} NOT NULL,
    UNIQUE (user_id, promo_code_id),
    FOREIGN KEY (user_id) REFERENCES users(id),
    FOREIGN KEY (promo_code_id) REFERENCES promo_codes(id)
)`,
}

func schemaStatements(d Dialect) []string {
	ts := "DATETIME(6)"
	switch d {
	case Postgres:
		ts = "TIMESTAMPTZ"
	case SQLite:
		ts = "DATETIME"
	}
	r := strings.NewReplacer("{{TS}}", ts)

	out := make([]string, 0, len(schema))
	for _, stmt := range schema {
		out = append(out, r.Replace(stmt))
	}
	return out
}
