package http

import (
	"net/http"
	"time"

	"github.com/atinyakov/liftlog/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the liftlog API handler.
//
// Routes:
//
//	GET    /api/health               → 204, unauthenticated
//	POST   /api/auth/register        → authHandler.Register
//	POST   /api/auth/login           → authHandler.Login
//	POST   /api/auth/refresh         → authHandler.Refresh
//	GET    /api/workouts             → list (bearer token)
//	POST   /api/workouts             → create/upsert by client id
//	PUT    /api/workouts/{id}        → update, 404 when missing
//	DELETE /api/workouts/{id}        → delete, 404 when missing
//	...    /api/measurements[/{id}]  → same shape as workouts
func NewRouter(
	authHandler *AuthHandler,
	workoutHandler *WorkoutHandler,
	verifier middleware.TokenVerifier,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Timeout(30 * time.Second))
	// Bodies must be JSON; chi lets empty bodies through.
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(verifier))

			r.Route("/workouts", func(r chi.Router) {
				r.Get("/", workoutHandler.ListWorkouts)
				r.Post("/", workoutHandler.CreateWorkout)
				r.Put("/{id}", workoutHandler.UpdateWorkout)
				r.Delete("/{id}", workoutHandler.DeleteWorkout)
			})
			r.Route("/measurements", func(r chi.Router) {
				r.Get("/", workoutHandler.ListMeasurements)
				r.Post("/", workoutHandler.CreateMeasurement)
				r.Put("/{id}", workoutHandler.UpdateMeasurement)
				r.Delete("/{id}", workoutHandler.DeleteMeasurement)
			})
		})
	})

	return r
}
