package connector

import "fmt"

// Family identifies one of the fixed set of connector backends. The set is
// closed: there is no plugin registration, and the selector dispatches over
// this enumeration exhaustively.
type Family string

const (
	FamilyPostgres     Family = "postgres"
	FamilyMySQL        Family = "mysql"
	FamilySQLite       Family = "sqlite"
	FamilyRedshift     Family = "redshift"
	FamilySnowflake    Family = "snowflake"
	FamilyBigQuery     Family = "bigquery"
	FamilyS3           Family = "s3"
	FamilyCSV          Family = "csv"
	FamilyJSON         Family = "json"
	FamilyRESTAPI      Family = "rest_api"
	FamilyMongoDB      Family = "mongodb"
	FamilyGoogleSheets Family = "google_sheets"
)

var allFamilies = map[Family]struct{}{
	FamilyPostgres:     {},
	FamilyMySQL:        {},
	FamilySQLite:       {},
	FamilyRedshift:     {},
	FamilySnowflake:    {},
	FamilyBigQuery:     {},
	FamilyS3:           {},
	FamilyCSV:          {},
	FamilyJSON:         {},
	FamilyRESTAPI:      {},
	FamilyMongoDB:      {},
	FamilyGoogleSheets: {},
}

// ParseFamily validates a stored family string against the closed set.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if _, ok := allFamilies[f]; !ok {
		return "", fmt.Errorf("unknown connector family %q", s)
	}
	return f, nil
}

// relational families share the database/sql source and destination shape.
func (f Family) relational() bool {
	switch f {
	case FamilyPostgres, FamilyMySQL, FamilySQLite, FamilyRedshift, FamilySnowflake:
		return true
	}
	return false
}

// fileBased families discover input objects by glob.
func (f Family) fileBased() bool {
	switch f {
	case FamilyS3, FamilyCSV, FamilyJSON:
		return true
	}
	return false
}
