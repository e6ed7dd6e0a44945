/*
Package session implements the Session/Checkpoint manager.

It serializes access to each workflow session (in process through reference-counted
mutexes and, optionally, across replicas through a DistributedLocker), rejects a
second live session for the same claim, archives closed sessions and recovers
sessions abandoned by a crashed process before they reached the review checkpoint.
*/
package session
