package models

// MovieCandidate is a parsed provider response that has not been persisted.
// It is produced only by the provider package; nothing downstream sees raw payloads.
type MovieCandidate struct {
	TMDbID        int
	IMDbID        *string
	Title         string
	OriginalTitle *string
	ReleaseDate   *string
	Overview      *string
	Runtime       *int
	Popularity    *float64
	VoteAverage   *float64
	VoteCount     *int
	PosterPath    *string
	BackdropPath  *string
	Adult         bool
	Cast          []CastMember
	Crew          []CrewMember
}

// PersonCandidate is a person referenced by a movie's credits.
type PersonCandidate struct {
	TMDbID             int
	Name               string
	Popularity         *float64
	ProfilePath        *string
	KnownForDepartment *string
}

// CastMember is one billed cast credit.
type CastMember struct {
	PersonCandidate
	CreditID  string
	Character string
	Order     int
}

// CrewMember is one crew credit.
type CrewMember struct {
	PersonCandidate
	CreditID   string
	Department string
	Job        string
}

// Fields converts the candidate into a full partial-write payload.
func (c MovieCandidate) Fields() MovieFields {
	f := MovieFields{
		IMDbID:        c.IMDbID,
		OriginalTitle: c.OriginalTitle,
		ReleaseDate:   c.ReleaseDate,
		Overview:      c.Overview,
		Runtime:       c.Runtime,
		Popularity:    c.Popularity,
		VoteAverage:   c.VoteAverage,
		VoteCount:     c.VoteCount,
		PosterPath:    c.PosterPath,
		BackdropPath:  c.BackdropPath,
	}
	if c.Title != "" {
		title := c.Title
		f.Title = &title
	}
	return f
}

// Year returns the release year, or 0 when unknown.
func (c MovieCandidate) Year() int {
	if c.ReleaseDate == nil || len(*c.ReleaseDate) < 4 {
		return 0
	}
	y := 0
	for _, r := range (*c.ReleaseDate)[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}
