package config

import (
	"hubrunner/app"
	"hubrunner/app/controller/apps"
	"hubrunner/app/controller/events"
	"hubrunner/app/controller/health"
	"hubrunner/app/controller/tasks"

	"github.com/labstack/echo/v4"
)

// AddRoutes wires every controller to its dependencies from the container.
// defaultKey is used for remote calls when a request carries no API key.
func AddRoutes(e *echo.Echo, container *app.Container, defaultKey string) {
	root := e.Group("")
	v1Route := e.Group("/api/v1")

	var pinger health.Pinger
	if container.DB != nil {
		if sqlDB, err := container.DB.DB(); err == nil {
			pinger = sqlDB
		}
	}
	health.Register(root, pinger)

	tasksHandler := tasks.NewHandler(container.Orchestrator, defaultKey)
	eventsHandler := events.NewHandler(container.Orchestrator)
	appsHandler := apps.NewHandler(container.Catalog, container.Uploads, defaultKey)

	tasksHandler.RegisterRoutes(v1Route.Group("/tasks"))
	eventsHandler.RegisterRoutes(v1Route.Group("/events"))
	appsHandler.RegisterRoutes(v1Route)
}
