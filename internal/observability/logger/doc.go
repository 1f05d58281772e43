// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: una sola instancia base inicializada con Init() desde main.
//   - Context Scoping: cada request lleva su propio logger (request_id, client_ip)
//     inyectado por middleware; los services lo recuperan con From(ctx).
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Nunca se loguean passwords ni tokens crudos.
//
// # Usage
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.login"))
//	log.Info("login ok", logger.UserID(u.ID))
package logger
