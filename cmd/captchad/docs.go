package main

// General API documentation for swaggo. Run `swag init -g cmd/captchad/docs.go` to generate docs.
//
// @title           captchad API
// @version         1.0
// @description     HTTP relay that recognizes CAPTCHA images by running an external model script.
//
// @contact.name   captchad maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
