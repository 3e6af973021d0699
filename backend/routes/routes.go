package routes

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"coursegate/backend/config"
	"coursegate/backend/controllers"
	"coursegate/backend/middleware"
	"coursegate/backend/services"
)

type Services struct {
	Payments    *services.PaymentService
	Progression *services.ProgressionService
	Quizzes     *services.QuizService
	Stream      *services.StreamService
}

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *config.Config, v *validator.Validate, svc Services) {
	// Auth routes
	authController := controllers.NewAuthController(db, cfg, v)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(db, cfg)
	adminMiddleware := middleware.AdminMiddleware()

	// Courses
	coursesController := controllers.NewCoursesController(db, v, svc.Payments, svc.Progression)
	courses := app.Group("/api/courses", authMiddleware)
	courses.Get("/", coursesController.ListCourses)
	courses.Get("/:id", coursesController.GetCourse)

	// Levels and streaming
	levelsController := controllers.NewLevelsController(db, v, svc.Stream)
	app.Get("/api/levels/:id/stream", authMiddleware, levelsController.StreamLevel)

	// Payments
	paymentsController := controllers.NewPaymentsController(db, v, svc.Payments, svc.Progression)
	payments := app.Group("/api/payments", authMiddleware)
	payments.Post("/", paymentsController.SubmitPayment)
	payments.Get("/course/:courseId/status", paymentsController.CoursePaymentStatus)
	payments.Get("/", adminMiddleware, paymentsController.ListPayments)
	payments.Put("/:id/status", adminMiddleware, paymentsController.SetPaymentStatus)

	// Progress
	progressController := controllers.NewProgressController(db, v, svc.Payments, svc.Progression)
	progress := app.Group("/api/progress", authMiddleware)
	progress.Post("/level-complete", progressController.LevelComplete)
	progress.Get("/course/:courseId", progressController.GetCourseProgress)

	// Quizzes
	quizzesController := controllers.NewQuizzesController(db, v, svc.Quizzes)
	quizzes := app.Group("/api/quizzes", authMiddleware)
	quizzes.Post("/:id/submit", quizzesController.SubmitQuiz)
	quizzes.Get("/level/:levelId", quizzesController.GetLevelQuiz)

	// Uploads
	uploadsController := controllers.NewUploadsController(cfg)
	app.Post("/api/uploads/proof", authMiddleware, uploadsController.UploadProof)

	// Admin course management
	adminCourses := app.Group("/api/admin/courses", authMiddleware, adminMiddleware)
	adminCourses.Post("/", coursesController.CreateCourse)
	adminCourses.Put("/:id", coursesController.UpdateCourse)
	adminCourses.Post("/:id/levels", levelsController.CreateLevel)
	adminCourses.Put("/:id/levels/:levelId", levelsController.UpdateLevel)

	adminQuizzes := app.Group("/api/admin/quizzes", authMiddleware, adminMiddleware)
	adminQuizzes.Post("/", quizzesController.CreateQuiz)
}
