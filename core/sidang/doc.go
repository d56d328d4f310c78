// Package sidang implements the thesis-defense auto-scheduler: the slot
// calendar, examiner load tracking, panel assignment, the all-or-nothing
// slot allocator, bulk rescheduling and single-entry editing.
//
// Everything in this package is a pure function of its inputs. Storage,
// locking and trigger handling live in the app package.
package sidang
