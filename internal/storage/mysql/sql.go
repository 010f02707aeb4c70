package mysql

const upsertLocationSQL = `
INSERT INTO locations
  (id, source, source_id, name, lat, lng, category, categories, rating, images, description, address, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name        = VALUES(name),
  lat         = VALUES(lat),
  lng         = VALUES(lng),
  category    = VALUES(category),
  categories  = VALUES(categories),
  rating      = COALESCE(VALUES(rating), locations.rating),
  images      = VALUES(images),
  description = COALESCE(VALUES(description), locations.description),
  address     = COALESCE(VALUES(address), locations.address),
  raw         = VALUES(raw),
  updated_at  = CURRENT_TIMESTAMP
`

const insertMissSQL = `
INSERT INTO ingest_misses (source, ref, http_status, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  http_status = VALUES(http_status),
  seen_at     = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const locationColumns = `id, source, source_id, name, lat, lng, categories, rating, images, description, address`

const getLocationSQL = `SELECT ` + locationColumns + ` FROM locations WHERE id = ?`

// listLocationsBase is extended with WHERE clauses by the repo; rows are
// ordered by id so list pages and clustering input are stable.
const listLocationsBase = `SELECT ` + locationColumns + ` FROM locations`
