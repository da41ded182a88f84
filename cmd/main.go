package main

import (
	"context"
	"log"

	"github.com/pot-code/curriculum/internal/curriculum"
	infra "github.com/pot-code/curriculum/internal/infrastructure"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/pot-code/curriculum/internal/infrastructure/logging"
	"github.com/pot-code/curriculum/internal/infrastructure/uuid"
	"github.com/pot-code/curriculum/internal/interfaces/rest"
	"github.com/pot-code/curriculum/internal/user"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	var (
		probes         = make(map[string]rest.Probe)
		userRepo       user.UserRepository
		curriculumRepo curriculum.Repository
		kv             driver.KeyValueDB
	)

	if option.Database.Driver == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		userRepo = user.NewUserMemory()
		curriculumRepo = curriculum.NewMemoryRepository()
	} else {
		dbConn, err := driver.GetDBConnection(&driver.DBConfig{
			User:     option.Database.User,
			Password: option.Database.Password,
			MaxConn:  option.Database.MaxConn,
			Protocol: option.Database.Protocol,
			Driver:   option.Database.Driver,
			Host:     option.Database.Host,
			Port:     option.Database.Port,
			Query:    option.Database.Query,
			Schema:   option.Database.Schema,
		})
		if err != nil {
			logger.Fatal("Failed to create DB connection", zap.Error(err))
		}
		defer dbConn.Close(context.Background())
		logger.Debug("Create DB connection instance",
			zap.String("db.driver", option.Database.Driver),
			zap.String("db.schema", option.Database.Schema),
			zap.String("db.host", option.Database.Host),
		)
		if option.Database.Migrate {
			statements := append(user.Schema(option.Database.Driver), curriculum.Schema(option.Database.Driver)...)
			if err := driver.Migrate(context.Background(), dbConn, statements...); err != nil {
				logger.Fatal("Failed to migrate DB schema", zap.Error(err))
			}
			logger.Info("DB schema migrated", zap.Int("statements", len(statements)))
		}
		probes["db"] = dbConn.Ping
		userRepo = user.NewUserRepository(dbConn)
		curriculumRepo = curriculum.NewSQLRepository(dbConn)
	}

	if option.KVStore.Host != "" {
		rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
		defer rdb.Close()
		probes["kv"] = rdb.Ping
		kv = rdb
	} else {
		logger.Warn("No kv host configured, token blacklist and login attempts are kept in memory")
		kv = driver.NewMemoryKV()
	}

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	UserUseCase := user.NewUserUseCase(userRepo, UUIDGenerator, kv, user.LockoutConfig{
		MaxAttempts:  option.Security.MaxLoginAttempts,
		RetryTimeout: option.Security.RetryTimeout,
	})
	Websocket := infra.NewWebsocket(logger)
	CurriculumUseCase := curriculum.NewUseCase(curriculumRepo, UUIDGenerator, UserUseCase, Websocket, &curriculum.Config{
		DefaultPageSize: option.Curriculum.DefaultPageSize,
		MaxPageSize:     option.Curriculum.MaxPageSize,
		TopCourses:      option.Curriculum.TopCourses,
	})

	if option.Security.AdminUsername != "" && option.Security.AdminPassword != "" {
		ctx := logging.SetLoggerInContext(context.Background(), logger)
		if err := UserUseCase.EnsureAdmin(ctx, &user.UserModel{
			Username: option.Security.AdminUsername,
			Email:    option.Security.AdminEmail,
			Password: option.Security.AdminPassword,
		}); err != nil {
			logger.Fatal("Failed to seed admin account", zap.Error(err))
		}
	}

	if err := rest.Serve(&rest.Dependencies{
		Option:            option,
		KVStore:           kv,
		Probes:            probes,
		UserUseCase:       UserUseCase,
		CurriculumUseCase: CurriculumUseCase,
		Websocket:         Websocket,
		Logger:            logger,
	}); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}
