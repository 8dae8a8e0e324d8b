package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// VECTOR STORE
// =============================================================================

// VectorStore owns the ANN index. When the sqlite-vec extension is compiled
// in (build tag sqlite_vec) searches go through a vec0 virtual table with
// cosine distance; otherwise a brute-force scan over the payload table is
// used, which is fine for corpora up to a few hundred thousand chunks.
//
// The collection is lazily created on the first upsert; its dimension is
// fixed at that moment and recorded, and every later insert must match.
type VectorStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	dbPath     string
	dimensions int // 0 until the collection exists
	vectorExt  bool
}

// NewVectorStore opens the vector database at path. An existing collection's
// dimension is loaded; a fresh database stays uninitialized until the first
// upsert.
func NewVectorStore(path string) (*VectorStore, error) {
	timer := logging.StartTimer(logging.CategoryVector, "NewVectorStore")
	defer timer.Stop()

	logging.Vector("Initializing VectorStore at path: %s", path)

	db, err := openSQLite(path)
	if err != nil {
		logging.Get(logging.CategoryVector).Error("Failed to open vector database: %v", err)
		return nil, err
	}

	v := &VectorStore{db: db, dbPath: path}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collection_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create meta table: %w", err)
	}

	var dimStr string
	err = db.QueryRow("SELECT value FROM collection_meta WHERE key = 'dimensions'").Scan(&dimStr)
	if err == nil {
		fmt.Sscanf(dimStr, "%d", &v.dimensions)
	}

	v.detectVecExtension()
	if v.vectorExt {
		logging.Vector("sqlite-vec extension detected and enabled")
	} else {
		logging.Get(logging.CategoryVector).Warn("sqlite-vec extension not available; using brute-force cosine scan")
	}
	return v, nil
}

// detectVecExtension probes for the vec0 module registered by the
// sqlite-vec bindings.
func (v *VectorStore) detectVecExtension() {
	var version string
	if err := v.db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		v.vectorExt = true
		logging.VectorDebug("sqlite-vec version: %s", version)
	}
}

// Dimensions returns the collection dimension, 0 if not yet created.
func (v *VectorStore) Dimensions() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dimensions
}

// Close releases the database handle.
func (v *VectorStore) Close() error {
	logging.Vector("Closing VectorStore at %s", v.dbPath)
	return v.db.Close()
}

// ensureCollection creates the payload table (and vec0 table when
// available) on first touch, pinning the dimension.
func (v *VectorStore) ensureCollection(dim int) error {
	if v.dimensions != 0 {
		if dim != v.dimensions {
			return types.E(types.KindInvariantViolated, "store.VectorStore",
				fmt.Sprintf("vector dimension %d does not match collection dimension %d", dim, v.dimensions))
		}
		return nil
	}

	payloadTable := `
	CREATE TABLE IF NOT EXISTS chunk_payloads (
		vector_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		section_type TEXT,
		document_type TEXT,
		text TEXT,
		date TEXT,
		court TEXT,
		chamber TEXT,
		case_number TEXT,
		dispute_category TEXT,
		outcome TEXT,
		deviation_flag INTEGER DEFAULT 0,
		precedent_status TEXT,
		law_articles TEXT,
		matter_id TEXT,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payloads_doc ON chunk_payloads(doc_id);
	CREATE INDEX IF NOT EXISTS idx_payloads_doctype ON chunk_payloads(document_type);
	`
	if _, err := v.db.Exec(payloadTable); err != nil {
		return fmt.Errorf("failed to create payload table: %w", err)
	}

	if v.vectorExt {
		vecTable := fmt.Sprintf(
			"CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(embedding float[%d] distance_metric=cosine)", dim)
		if _, err := v.db.Exec(vecTable); err != nil {
			logging.Get(logging.CategoryVector).Warn("failed to create vec0 table, falling back to scan: %v", err)
			v.vectorExt = false
		}
	}

	if _, err := v.db.Exec(
		"INSERT OR REPLACE INTO collection_meta (key, value) VALUES ('dimensions', ?)",
		fmt.Sprintf("%d", dim)); err != nil {
		return fmt.Errorf("failed to record collection dimension: %w", err)
	}
	v.dimensions = dim
	logging.Vector("collection created with dimension %d (vec0=%v)", dim, v.vectorExt)
	return nil
}

// =============================================================================
// UPSERT / DELETE
// =============================================================================

// Upsert stores a vector with its denormalized payload.
func (v *VectorStore) Upsert(vectorID string, vector []float32, payload types.ChunkPayload) error {
	const op = "store.VectorStore.Upsert"
	v.mu.Lock()
	defer v.mu.Unlock()

	if vectorID == "" {
		return types.E(types.KindInvalidArgument, op, "vector id is required")
	}
	if len(vector) == 0 {
		return types.E(types.KindInvalidArgument, op, "vector is empty")
	}
	if err := v.ensureCollection(len(vector)); err != nil {
		return err
	}

	articles, _ := json.Marshal(payload.LawArticles)
	deviation := 0
	if payload.DeviationFlag {
		deviation = 1
	}

	_, err := v.db.Exec(`
		INSERT INTO chunk_payloads
			(vector_id, doc_id, section_type, document_type, text, date, court,
			 chamber, case_number, dispute_category, outcome, deviation_flag,
			 precedent_status, law_articles, matter_id, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vector_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			section_type = excluded.section_type,
			document_type = excluded.document_type,
			text = excluded.text,
			date = excluded.date,
			court = excluded.court,
			chamber = excluded.chamber,
			case_number = excluded.case_number,
			dispute_category = excluded.dispute_category,
			outcome = excluded.outcome,
			deviation_flag = excluded.deviation_flag,
			precedent_status = excluded.precedent_status,
			law_articles = excluded.law_articles,
			matter_id = excluded.matter_id,
			embedding = excluded.embedding`,
		vectorID, payload.DocID, string(payload.SectionType), string(payload.DocumentType),
		payload.Text, payload.Date, payload.Court, payload.Chamber, payload.CaseNumber,
		payload.DisputeCategory, payload.Outcome, deviation, payload.PrecedentStatus,
		string(articles), payload.MatterID, encodeVector(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert vector payload: %w", err)
	}

	if v.vectorExt {
		var rowid int64
		if err := v.db.QueryRow(
			"SELECT rowid FROM chunk_payloads WHERE vector_id = ?", vectorID,
		).Scan(&rowid); err != nil {
			return fmt.Errorf("failed to resolve payload rowid: %w", err)
		}
		if _, err := v.db.Exec("DELETE FROM vec_chunks WHERE rowid = ?", rowid); err != nil {
			return fmt.Errorf("failed to clear vec row: %w", err)
		}
		if _, err := v.db.Exec(
			"INSERT INTO vec_chunks (rowid, embedding) VALUES (?, ?)",
			rowid, encodeVector(vector)); err != nil {
			return fmt.Errorf("failed to insert vec row: %w", err)
		}
	}
	return nil
}

// DeleteByDocument removes every vector belonging to a document. Returns
// the number of vectors removed.
func (v *VectorStore) DeleteByDocument(docID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dimensions == 0 {
		return 0, nil
	}
	if v.vectorExt {
		if _, err := v.db.Exec(`
			DELETE FROM vec_chunks WHERE rowid IN
				(SELECT rowid FROM chunk_payloads WHERE doc_id = ?)`, docID); err != nil {
			return 0, fmt.Errorf("failed to delete vec rows: %w", err)
		}
	}
	res, err := v.db.Exec("DELETE FROM chunk_payloads WHERE doc_id = ?", docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete payloads: %w", err)
	}
	n, _ := res.RowsAffected()
	logging.VectorDebug("deleted %d vectors for document %s", n, docID)
	return int(n), nil
}

// =============================================================================
// FILTERED SEARCH
// =============================================================================

// VectorFilter is an AND of equality/range predicates over payload fields.
// Chambers is the one OR-group, used for multi-chamber expansion.
type VectorFilter struct {
	DocumentType    types.DocumentType
	SectionTypes    []types.SectionType
	Court           string
	Chambers        []string
	CaseNumber      string
	DisputeCategory string
	Outcome         string
	MatterID        string
	DateFrom        string
	DateTo          string
}

func (f VectorFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	if f.DocumentType != "" {
		add("document_type = ?", string(f.DocumentType))
	}
	if len(f.SectionTypes) > 0 {
		ph := "?" + strings.Repeat(",?", len(f.SectionTypes)-1)
		vals := make([]any, len(f.SectionTypes))
		for i, t := range f.SectionTypes {
			vals[i] = string(t)
		}
		add("section_type IN ("+ph+")", vals...)
	}
	if f.Court != "" {
		add("court = ?", f.Court)
	}
	if len(f.Chambers) > 0 {
		ph := "?" + strings.Repeat(",?", len(f.Chambers)-1)
		vals := make([]any, len(f.Chambers))
		for i, c := range f.Chambers {
			vals[i] = c
		}
		add("chamber IN ("+ph+")", vals...)
	}
	if f.CaseNumber != "" {
		add("case_number = ?", f.CaseNumber)
	}
	if f.DisputeCategory != "" {
		add("dispute_category = ?", f.DisputeCategory)
	}
	if f.Outcome != "" {
		add("outcome = ?", f.Outcome)
	}
	if f.MatterID != "" {
		add("matter_id = ?", f.MatterID)
	}
	if f.DateFrom != "" {
		add("date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		add("date <= ?", f.DateTo)
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Search runs filtered cosine search and returns hits sorted by score
// descending. Score is cosine similarity in [-1, 1].
func (v *VectorStore) Search(queryVector []float32, filter VectorFilter, limit int) ([]types.VectorHit, error) {
	const op = "store.VectorStore.Search"
	v.mu.RLock()
	defer v.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	if v.dimensions == 0 {
		return nil, nil
	}
	if len(queryVector) != v.dimensions {
		return nil, types.E(types.KindInvariantViolated, op,
			fmt.Sprintf("query vector dimension %d does not match collection dimension %d",
				len(queryVector), v.dimensions))
	}

	timer := logging.StartTimer(logging.CategoryVector, "Search")
	defer timer.Stop()

	if v.vectorExt {
		hits, err := v.searchVec(queryVector, filter, limit)
		if err == nil {
			return hits, nil
		}
		logging.Get(logging.CategoryVector).Warn("vec0 search failed, falling back to scan: %v", err)
	}
	return v.searchScan(queryVector, filter, limit)
}

// searchVec queries the vec0 index with an oversampled k and applies the
// payload filter afterwards; vec0 KNN cannot evaluate arbitrary joins.
func (v *VectorStore) searchVec(queryVector []float32, filter VectorFilter, limit int) ([]types.VectorHit, error) {
	where, args := filter.whereClause()
	k := limit * 8
	if k < 50 {
		k = 50
	}

	query := fmt.Sprintf(`
		SELECT p.vector_id, vc.distance, %s
		FROM vec_chunks vc
		JOIN chunk_payloads p ON p.rowid = vc.rowid
		WHERE vc.embedding MATCH ? AND vc.k = ? AND %s
		ORDER BY vc.distance`, payloadColumns, where)
	qargs := append([]any{encodeVector(queryVector), k}, args...)

	rows, err := v.db.Query(query, qargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []types.VectorHit
	for rows.Next() {
		var hit types.VectorHit
		var distance float64
		if err := scanHit(rows, &hit, &distance); err != nil {
			return nil, err
		}
		hit.Score = 1 - distance
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	return hits, rows.Err()
}

// searchScan is the brute-force path: SQL filter then cosine in process.
func (v *VectorStore) searchScan(queryVector []float32, filter VectorFilter, limit int) ([]types.VectorHit, error) {
	where, args := filter.whereClause()
	rows, err := v.db.Query(fmt.Sprintf(
		"SELECT p.vector_id, p.embedding, %s FROM chunk_payloads p WHERE %s",
		payloadColumns, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []types.VectorHit
	for rows.Next() {
		var hit types.VectorHit
		var blob []byte
		if err := scanHit(rows, &hit, &blob); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		if len(vec) != len(queryVector) {
			continue
		}
		hit.Score = cosine(queryVector, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

const payloadColumns = `p.doc_id, COALESCE(p.section_type,''), COALESCE(p.document_type,''),
	COALESCE(p.text,''), COALESCE(p.date,''), COALESCE(p.court,''), COALESCE(p.chamber,''),
	COALESCE(p.case_number,''), COALESCE(p.dispute_category,''), COALESCE(p.outcome,''),
	p.deviation_flag, COALESCE(p.precedent_status,''), COALESCE(p.law_articles,'[]'),
	COALESCE(p.matter_id,'')`

// scanHit scans vector_id, the second column (distance or blob), then the
// payload columns.
func scanHit(rows *sql.Rows, hit *types.VectorHit, second any) error {
	var sectionType, documentType, articles string
	var deviation int
	err := rows.Scan(&hit.VectorID, second,
		&hit.Payload.DocID, &sectionType, &documentType, &hit.Payload.Text,
		&hit.Payload.Date, &hit.Payload.Court, &hit.Payload.Chamber,
		&hit.Payload.CaseNumber, &hit.Payload.DisputeCategory, &hit.Payload.Outcome,
		&deviation, &hit.Payload.PrecedentStatus, &articles, &hit.Payload.MatterID)
	if err != nil {
		return err
	}
	hit.Payload.SectionType = types.SectionType(sectionType)
	hit.Payload.DocumentType = types.DocumentType(documentType)
	hit.Payload.DeviationFlag = deviation != 0
	json.Unmarshal([]byte(articles), &hit.Payload.LawArticles)
	return nil
}

// Count returns the number of stored vectors.
func (v *VectorStore) Count() (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.dimensions == 0 {
		return 0, nil
	}
	var n int
	err := v.db.QueryRow("SELECT COUNT(*) FROM chunk_payloads").Scan(&n)
	return n, err
}

// =============================================================================
// VECTOR ENCODING
// =============================================================================

// encodeVector serializes a float32 slice as little-endian bytes, the
// format sqlite-vec expects for float[] columns.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, ma, mb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		ma += float64(a[i]) * float64(a[i])
		mb += float64(b[i]) * float64(b[i])
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}
