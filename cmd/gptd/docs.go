package main

// General API documentation for swaggo. Run `swag init` to regenerate docs.
//
// @title           gptd API
// @version         1.0
// @description     HTTP API for quantization-enforced single-model text generation.
//
// @BasePath  /
//
// @schemes http
