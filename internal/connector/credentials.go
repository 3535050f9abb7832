package connector

// Credential adaptation: pure mapping from the stored connection config
// shape to the shape a connector implementation expects. Storage uses a
// generic `user` field; drivers want `username`. Path-based families store
// a local `path`; the SQL layer wants it as `database`. No I/O here —
// unknown families are rejected upstream by the selector.

// wireDrivers records the stored driver identifier per SQL family.
var wireDrivers = map[Family]string{
	FamilyPostgres:  "postgresql",
	FamilyMySQL:     "mysql+pymysql",
	FamilySQLite:    "sqlite",
	FamilyRedshift:  "redshift+redshift_connector",
	FamilySnowflake: "snowflake",
}

// sqlDrivers maps a family to the registered database/sql driver name.
var sqlDrivers = map[Family]string{
	FamilyPostgres:  "postgres",
	FamilyRedshift:  "postgres",
	FamilyMySQL:     "mysql",
	FamilySQLite:    "sqlite",
	FamilySnowflake: "snowflake",
}

// DriverName returns the database/sql driver registered for a SQL family.
func DriverName(family Family) string {
	return sqlDrivers[family]
}

// AdaptCredentials maps a decrypted connection config into connector
// credential shape. The input map is not mutated.
func AdaptCredentials(family Family, config Config) Config {
	creds := make(Config, len(config)+2)
	for k, v := range config {
		creds[k] = v
	}

	switch family {
	case FamilyPostgres, FamilyMySQL, FamilyRedshift, FamilySnowflake:
		renameUser(creds)
	case FamilySQLite:
		if path, ok := creds["path"]; ok {
			creds["database"] = path
			delete(creds, "path")
		}
	default:
		// bigquery and the non-SQL families pass through unchanged.
		return creds
	}

	if driver, ok := wireDrivers[family]; ok {
		creds["drivername"] = driver
	}
	return creds
}

func renameUser(creds Config) {
	if _, ok := creds["username"]; ok {
		delete(creds, "user")
		return
	}
	if user, ok := creds["user"]; ok {
		creds["username"] = user
		delete(creds, "user")
	}
}
