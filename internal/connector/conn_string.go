package connector

import (
	"fmt"
	"net/url"

	"github.com/snowflakedb/gosnowflake"
)

func (c Config) stringVal(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func (c Config) intVal(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// BuildDSN assembles a database/sql driver name and DSN for a SQL family
// from already-adapted credentials. Credentials are query-escaped so
// passwords with reserved characters survive URI assembly.
func BuildDSN(family Family, creds Config) (driver, dsn string, err error) {
	driver = DriverName(family)
	if driver == "" {
		return "", "", &UnsupportedConnectorError{Family: family, Operation: "sql"}
	}

	switch family {
	case FamilyPostgres, FamilyRedshift:
		port := creds.intVal("port", defaultPort(family))
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(creds.stringVal("username")),
			url.QueryEscape(creds.stringVal("password")),
			creds.stringVal("host"),
			port,
			creds.stringVal("database"),
			sslMode(creds))
	case FamilyMySQL:
		port := creds.intVal("port", 3306)
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			creds.stringVal("username"),
			creds.stringVal("password"),
			creds.stringVal("host"),
			port,
			creds.stringVal("database"))
	case FamilySQLite:
		dsn = creds.stringVal("database")
		if dsn == "" {
			return "", "", NewConfigError("sqlite connection requires 'path'")
		}
	case FamilySnowflake:
		cfg := &gosnowflake.Config{
			Account:   creds.stringVal("account"),
			User:      creds.stringVal("username"),
			Password:  creds.stringVal("password"),
			Database:  creds.stringVal("database"),
			Schema:    creds.stringVal("schema"),
			Warehouse: creds.stringVal("warehouse"),
			Role:      creds.stringVal("role"),
		}
		dsn, err = gosnowflake.DSN(cfg)
		if err != nil {
			return "", "", NewConfigError("invalid snowflake config: %v", err)
		}
	default:
		return "", "", &UnsupportedConnectorError{Family: family, Operation: "sql"}
	}
	return driver, dsn, nil
}

func defaultPort(family Family) int {
	if family == FamilyRedshift {
		return 5439
	}
	return 5432
}

func sslMode(creds Config) string {
	if mode := creds.stringVal("sslmode"); mode != "" {
		return mode
	}
	return "prefer"
}

// MongoURI assembles a MongoDB connection URI with escaped credentials.
// An explicit connection_uri in the config wins.
func MongoURI(creds Config) string {
	if uri := creds.stringVal("connection_uri"); uri != "" {
		return uri
	}
	host := creds.stringVal("host")
	if host == "" {
		host = "localhost"
	}
	port := creds.intVal("port", 27017)
	database := creds.stringVal("database")
	user := creds.stringVal("username")
	if user == "" {
		user = creds.stringVal("user")
	}
	if user != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s",
			url.QueryEscape(user),
			url.QueryEscape(creds.stringVal("password")),
			host, port, database)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", host, port, database)
}
