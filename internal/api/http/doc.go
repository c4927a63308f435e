// Package http implements the admin API handlers: solve dispatch, strategy
// catalog management, circuit and statistics views, and credential/usage
// reporting. Taxonomy errors map onto HTTP statuses here and nowhere else.
package http
