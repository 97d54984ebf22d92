package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/api/v1/health", s.health)

	api := s.router.Group("/api/v1", s.authMiddleware())
	{
		api.GET("/users/me", s.getMe)
		api.PATCH("/users/me", s.updateMe)
		api.GET("/users/me/stats", s.getMyStats)

		api.POST("/payments/invoice", s.createInvoice)
		api.GET("/payments/history", s.paymentHistory)
		api.POST("/charts/activate", s.activateCharts)

		api.GET("/ton/config", s.tonConfig)
		api.POST("/ton/payments", s.createTonPayment)
		api.GET("/ton/payments/:comment", s.tonPaymentByComment)
		api.GET("/ton/history", s.tonPaymentHistory)

		api.GET("/leaderboard", s.allTimeLeaderboard)
		api.GET("/leaderboard/week", s.weekLeaderboard)
		api.GET("/leaderboard/referrals", s.referralLeaderboard)
		api.GET("/leaderboard/total", s.totalCollected)

		api.GET("/tasks", s.listTasks)
		api.POST("/tasks/:id/complete", s.completeTask)
	}
}
