// Package demo declares the demo slices (a blog, a user and two small
// counters) and drives them through a scripted run used by "srasm demo" and
// the server inspector.
package demo
