// Package scheduler implements rolling-horizon planning for crowdsensing
// campaigns. Each window is turned into a time-expanded flow network,
// solved, validated against the observed contacts and executed before the
// next window is planned with the executed history pinned in place.
package scheduler
