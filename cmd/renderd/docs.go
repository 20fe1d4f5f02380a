package main

// General API documentation for swaggo. Build with -tags=swagger to serve it.
//
// @title           renderd API
// @version         1.0
// @description     HTTP API for adaptive parametric geometry rendering.
//
// @contact.name   renderd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
