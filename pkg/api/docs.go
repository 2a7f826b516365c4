// Package api serves the documentation site and the JSON API of ringer-docs.
//
//	@title						Ringer Docs API
//	@version					1.0
//	@description				Published OpenAPI specifications and the GitHub spec mirror.
//	@description				Spec endpoints are read-only and public; triggering a sync requires an API key.
//
//	@contact.name				Ringer Support
//	@contact.email				support@ringer.tel
//
//	@host						localhost:3000
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				API key authentication. Format: "Bearer {key}"
//
//	@tag.name					specs
//	@tag.description			Published OpenAPI specifications
//
//	@tag.name					sync
//	@tag.description			GitHub spec mirror and its history
//
//	@tag.name					system
//	@tag.description			System health and status
//
//	@tag.name					websocket
//	@tag.description			Sync notifications
package api
