// Package serial implements the serial channel over Linux tty devices.
//
// A Port is opened in raw 8N1 mode at a fixed speed. Writes return only
// once the bytes have left the kernel output queue, and a background
// watcher reports hang-ups and device removal on the Errors channel
// independently of any write in progress.
package serial
