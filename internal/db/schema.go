package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MOVIE TABLE (record key = TMDb id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS movie SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS tmdb_id ON movie TYPE int;
    DEFINE FIELD IF NOT EXISTS imdb_id ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS title ON movie TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS original_title ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS release_date ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS overview ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS runtime ON movie TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS popularity ON movie TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS vote_average ON movie TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS vote_count ON movie TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS poster_path ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS backdrop_path ON movie TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS import_status ON movie TYPE string DEFAULT "pending"
        ASSERT $value IN ["full", "soft", "pending"];
    -- One key per list or ceremony that references the movie
    DEFINE FIELD IF NOT EXISTS canonical_sources ON movie TYPE object FLEXIBLE DEFAULT {};
    DEFINE FIELD IF NOT EXISTS external_ratings ON movie TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS revision ON movie TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON movie TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON movie TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS movie_imdb ON movie FIELDS imdb_id;
    DEFINE INDEX IF NOT EXISTS movie_status ON movie FIELDS import_status;

    -- ==========================================================================
    -- PERSON TABLE (record key = TMDb person id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS person SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS tmdb_id ON person TYPE int;
    DEFINE FIELD IF NOT EXISTS name ON person TYPE string;
    DEFINE FIELD IF NOT EXISTS popularity ON person TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS profile_path ON person TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS known_for_department ON person TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS import_status ON person TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS created ON person TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON person TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- CREDIT TABLE (record key = provider credit id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS credit SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS credit_id ON credit TYPE string;
    DEFINE FIELD IF NOT EXISTS movie ON credit TYPE int;
    DEFINE FIELD IF NOT EXISTS person ON credit TYPE int;
    DEFINE FIELD IF NOT EXISTS kind ON credit TYPE string ASSERT $value IN ["cast", "crew"];
    DEFINE FIELD IF NOT EXISTS character ON credit TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS department ON credit TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS job ON credit TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS billing_order ON credit TYPE option<int>;

    DEFINE INDEX IF NOT EXISTS credit_movie ON credit FIELDS movie;
    DEFINE INDEX IF NOT EXISTS credit_person ON credit FIELDS person;

    -- ==========================================================================
    -- COLLABORATION TABLE (record key = "<a>_<b>_<movie>", a < b)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS collaboration SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS person_a ON collaboration TYPE int;
    DEFINE FIELD IF NOT EXISTS person_b ON collaboration TYPE int;
    DEFINE FIELD IF NOT EXISTS movie ON collaboration TYPE int;
    DEFINE FIELD IF NOT EXISTS year ON collaboration TYPE option<int>;

    DEFINE INDEX IF NOT EXISTS collaboration_movie ON collaboration FIELDS movie;
    DEFINE INDEX IF NOT EXISTS collaboration_pair ON collaboration FIELDS person_a, person_b, movie UNIQUE;

    -- ==========================================================================
    -- IMPORT STATE (record key = scope)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS import_state SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS scope ON import_state TYPE string;
    DEFINE FIELD IF NOT EXISTS last_page_processed ON import_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_pages ON import_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_known ON import_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS status ON import_state TYPE string DEFAULT "idle";
    DEFINE FIELD IF NOT EXISTS failed_pages ON import_state TYPE array<int> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS version ON import_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS metadata ON import_state TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS updated ON import_state TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- IMPORT JOB (durable queue)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS import_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON import_job TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON import_job TYPE object FLEXIBLE DEFAULT {};
    DEFINE FIELD IF NOT EXISTS state ON import_job TYPE string DEFAULT "available"
        ASSERT $value IN ["available", "executing", "completed", "retryable", "discarded", "cancelled"];
    DEFINE FIELD IF NOT EXISTS attempt ON import_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS max_attempts ON import_job TYPE int DEFAULT 3;
    DEFINE FIELD IF NOT EXISTS scheduled_at ON import_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS last_error ON import_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS errors ON import_job TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created ON import_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON import_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON import_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS import_job_claim ON import_job FIELDS state, scheduled_at;
    DEFINE INDEX IF NOT EXISTS import_job_kind ON import_job FIELDS kind, state;

    -- ==========================================================================
    -- SKIPPED IMPORT (append-only audit)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS skipped_import SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS entity_kind ON skipped_import TYPE string;
    DEFINE FIELD IF NOT EXISTS external_id ON skipped_import TYPE int;
    DEFINE FIELD IF NOT EXISTS imdb_id ON skipped_import TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS title ON skipped_import TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS decision ON skipped_import TYPE string;
    DEFINE FIELD IF NOT EXISTS reason ON skipped_import TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON skipped_import TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created ON skipped_import TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON skipped_import TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS skipped_import_created ON skipped_import FIELDS created;
`
