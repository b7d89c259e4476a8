package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "COBRAFACIL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "COBRAFACIL_DB_DSN"
	EnvDBHost = "COBRAFACIL_DB_HOST"
	EnvDBUser = "COBRAFACIL_DB_USER"
	EnvDBName = "COBRAFACIL_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
