package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"`
	SessionRefresh time.Duration `mapstructure:"session_refresh" json:"session_refresh" yaml:"session_refresh"`     // session refresh threshold
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=mysql postgres memory"`         // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required_unless=Driver memory"`             // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                            // maximum opening connections number
		Password string `mapstructure:"password" json:"password" yaml:"password" validate:"required_unless=Driver memory"` // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                      // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"`       // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                                   // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema" validate:"required_unless=Driver memory"`       // use schema
		User     string `mapstructure:"username" json:"username" yaml:"username" validate:"required_unless=Driver memory"` // db username
		Migrate  bool   `mapstructure:"migrate" json:"migrate" yaml:"migrate"`                                             // create tables on startup
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength         int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8,max=32"`         // length of generated ID for entities
		JWTMethod        string        `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS512"`
		JWTSecret        string        `mapstructure:"jwt_secret" json:"-" yaml:"jwt_secret" validate:"required"`
		TokenName        string        `mapstructure:"token_name" json:"token_name" yaml:"token_name" validate:"required"`          // jwt token name set in cookie
		MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts" yaml:"max_login_attempts"`      // maximum login attempts
		RetryTimeout     time.Duration `mapstructure:"retry_timeout" json:"retry_timeout" yaml:"retry_timeout"`                     // retry wait
		AdminUsername    string        `mapstructure:"admin_username" json:"admin_username" yaml:"admin_username"`                  // seeded admin account
		AdminEmail       string        `mapstructure:"admin_email" json:"admin_email" yaml:"admin_email"`
		AdminPassword    string        `mapstructure:"admin_password" json:"-" yaml:"admin_password"`
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`      // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`      // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password"` // password for security reasons
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Curriculum struct {
		DefaultPageSize int `mapstructure:"default_page_size" json:"default_page_size" yaml:"default_page_size" validate:"min=1"`
		MaxPageSize     int `mapstructure:"max_page_size" json:"max_page_size" yaml:"max_page_size" validate:"gtefield=DefaultPageSize"`
		TopCourses      int `mapstructure:"top_courses" json:"top_courses" yaml:"top_courses" validate:"min=1"`
	} `mapstructure:"curriculum" json:"curriculum" yaml:"curriculum"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins" json:"allow_origins" yaml:"allow_origins"` // origins allowed to send credentialed requests
	} `mapstructure:"cors" json:"cors" yaml:"cors"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	// app
	pflag.String("env_file", ".env", "dotenv file to load before reading the environment, ignored when missing")
	pflag.String("host", "", "binding address")
	pflag.String("app_id", "", "application identifier (required)")
	pflag.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("request_timeout", 30*time.Second, "abort requests running longer than this")
	pflag.Duration("session_timeout", 30*time.Minute, "JWT lifetime(m, s and h units are supported), eg.30m")
	pflag.Duration("session_refresh", 5*time.Minute, "session refresh threshold(m, s and h units are supported), eg.5m")

	// database
	pflag.String("database.driver", "mysql", "database driver to use, one of mysql, postgres or memory")
	pflag.String("database.host", "127.0.0.1", "database host")
	pflag.Int("database.port", 3306, "database server port")
	pflag.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	pflag.String("database.username", "", "database username (required)")
	pflag.String("database.password", "", "database password (required)")
	pflag.String("database.schema", "", "database schema (required)")
	pflag.String("database.query", "", `additional DSN query parameters('?' is auto prefixed), if you work with mysql
you must specify "parseTime=true"`)
	pflag.Int32("database.maxconn", 200, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)
	pflag.Bool("database.migrate", false, "create missing tables on startup")

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")

	// security
	pflag.Int("security.id_length", 24, "set length of generated ID for entities")
	pflag.String("security.jwt_method", "HS256", "hash algorithm used for JWT auth")
	pflag.String("security.jwt_secret", "", "JWT secret (required)")
	pflag.String("security.token_name", "", "cookie name to store the token (required)")
	pflag.Int("security.max_login_attempts", 3, "maximum login attempts")
	pflag.Duration("security.retry_timeout", 1*time.Hour, "retry wait")
	pflag.String("security.admin_username", "", "seed an admin account with this username on startup")
	pflag.String("security.admin_email", "", "email of the seeded admin account")
	pflag.String("security.admin_password", "", "password of the seeded admin account")

	// kv storage
	pflag.String("kv.host", "127.0.0.1", "kv host")
	pflag.Int("kv.port", 6379, "kv server port")
	pflag.String("kv.password", "", "kv server password")

	// curriculum
	pflag.Int("curriculum.default_page_size", 20, "page size used by course search when none is given")
	pflag.Int("curriculum.max_page_size", 100, "upper bound of the course search page size")
	pflag.Int("curriculum.top_courses", 5, "number of courses listed in the dashboard stats")

	// cors
	pflag.StringSlice("cors.allow_origins", []string{"http://127.0.0.1:8080"}, "origins allowed to call the api with credentials")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	if err := loadDotEnv(viper.GetString("env_file")); err != nil {
		return nil, err
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		log.Fatalf("Failed to validate config: %s", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required", "required_unless":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		case "min", "gtefield":
			msg = append(msg, fmt.Sprintf("%s is too small", fieldName))
		case "max":
			msg = append(msg, fmt.Sprintf("%s must not exceed %s", fieldName, field.Param()))
		default:
			msg = append(msg, fmt.Sprintf("%s is invalid (%s)", fieldName, field.Tag()))
		}
	}
	return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
}
